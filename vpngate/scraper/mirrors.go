package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"autogate/vpngate/model"
)

const mirrorsPage = "mirrors"

// ParseMirrorList 解析镜像站点页面。镜像列表是 #vpngate_inner_contents_td 中的第二个 <ul>。
func ParseMirrorList(markup []byte) ([]*model.MirrorRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, pageError(mirrorsPage, "document", err.Error())
	}

	container := doc.Find("#vpngate_inner_contents_td").First()
	if container.Length() == 0 {
		return nil, pageError(mirrorsPage, "container", "#vpngate_inner_contents_td not found")
	}
	lists := container.Find("ul")
	if lists.Length() < 2 {
		return nil, pageError(mirrorsPage, "list", fmt.Sprintf("expected at least 2 <ul> elements, got %d", lists.Length()))
	}

	items := lists.Eq(1).Find("li")
	mirrors := make([]*model.MirrorRecord, 0, items.Length())
	for i := range items.Nodes {
		mirror, err := parseMirrorItem(i, items.Eq(i))
		if err != nil {
			return nil, err
		}
		mirrors = append(mirrors, mirror)
	}
	return mirrors, nil
}

func parseMirrorItem(row int, item *goquery.Selection) (*model.MirrorRecord, error) {
	strong := item.Find("strong").First()
	if strong.Length() == 0 {
		return nil, rowError(mirrorsPage, row, "url", errors.New("missing <strong> element"))
	}

	link := strong.Find("span").First().Find("a").First()
	if link.Length() == 0 {
		return nil, rowError(mirrorsPage, row, "url", errors.New("missing <span><a> link"))
	}
	rawURL := strings.TrimSpace(link.Text())
	if u, err := url.Parse(rawURL); err != nil || !u.IsAbs() {
		return nil, rowError(mirrorsPage, row, "url", fmt.Errorf("%q is not an absolute URL", rawURL))
	}

	// 位置信息是紧跟在 <strong> 之后的文本节点: "... (Mirror location: Japan)"
	next := strong.Get(0).NextSibling
	if next == nil || next.Type != html.TextNode {
		return nil, rowError(mirrorsPage, row, mirrorLocationField.name, errors.New("missing location text after <strong>"))
	}
	country, err := mirrorLocationField.parse(strings.TrimSpace(next.Data))
	if err != nil {
		return nil, rowError(mirrorsPage, row, mirrorLocationField.name, err)
	}

	return &model.MirrorRecord{URL: rawURL, Country: country}, nil
}
