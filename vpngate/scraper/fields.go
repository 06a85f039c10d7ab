package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"autogate/vpngate/model"
)

// fieldPattern 描述单个字段的微格式：一个正则加一个提取函数。
type fieldPattern[T any] struct {
	name    string
	re      *regexp.Regexp
	extract func(groups []string) (T, error)
}

func (f fieldPattern[T]) parse(s string) (T, error) {
	var zero T
	m := f.re.FindStringSubmatch(s)
	if m == nil {
		return zero, fmt.Errorf("%q does not match %s", s, f.re)
	}
	return f.extract(m)
}

var (
	sessionsField = fieldPattern[int]{
		name:    "sessions",
		re:      regexp.MustCompile(`^(\d+) sessions$`),
		extract: func(m []string) (int, error) { return strconv.Atoi(m[1]) },
	}

	bandwidthField = fieldPattern[float64]{
		name:    "bandwidth",
		re:      regexp.MustCompile(`^(\d+\.?\d*) Mbps$`),
		extract: func(m []string) (float64, error) { return strconv.ParseFloat(m[1], 64) },
	}

	scoreField = fieldPattern[int]{
		name: "score",
		re:   regexp.MustCompile(`^(\d[\d,]*)$`),
		extract: func(m []string) (int, error) {
			return strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		},
	}

	// "By Someone's owner" -> "Someone"; both wrappers are optional.
	ownerField = fieldPattern[string]{
		name:    "owner",
		re:      regexp.MustCompile(`^(By )?(.*?)('s owner)?$`),
		extract: func(m []string) (string, error) { return m[2], nil },
	}

	portField = fieldPattern[model.PortEntry]{
		name: "openvpn",
		re:   regexp.MustCompile(`^(UDP|TCP): (\d+)$`),
		extract: func(m []string) (model.PortEntry, error) {
			port, err := strconv.Atoi(m[2])
			if err != nil {
				return model.PortEntry{}, err
			}
			if port <= 0 {
				return model.PortEntry{}, fmt.Errorf("port %d is not positive", port)
			}
			return model.PortEntry{Protocol: strings.ToLower(m[1]), Port: port}, nil
		},
	}

	mirrorLocationField = fieldPattern[string]{
		name:    "country",
		re:      regexp.MustCompile(`^.*\(Mirror location: (.+?)\)$`),
		extract: func(m []string) (string, error) { return m[1], nil },
	}
)
