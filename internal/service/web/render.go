package web

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"autogate/vpngate/model"
)

const (
	openVpnEndpoint = "/api/v1/openvpn"
	tableBodyID     = "#table-body"
)

// scorePrinter 用于输出带千位分隔符的分数，例如 1,234,567。
var scorePrinter = message.NewPrinter(language.English)

// displayServers 过滤掉既不支持 L2TP 也不支持 OpenVPN 的服务器，
// 并按 (L2TP 优先, 分数降序) 稳定排序。输入切片不会被修改。
func displayServers(servers []*model.ServerRecord) []*model.ServerRecord {
	shown := make([]*model.ServerRecord, 0, len(servers))
	for _, s := range servers {
		if s.Reachable() {
			shown = append(shown, s)
		}
	}
	sort.SliceStable(shown, func(i, j int) bool {
		if shown[i].L2TP != shown[j].L2TP {
			return shown[i].L2TP
		}
		return shown[i].Score > shown[j].Score
	})
	return shown
}

// renderServersPage 把服务器列表写入 servers.html 骨架的 #table-body 中。
func renderServersPage(w io.Writer, servers []*model.ServerRecord) error {
	doc, body, err := loadSkeleton("static/servers.html")
	if err != nil {
		return err
	}
	for _, s := range displayServers(servers) {
		body.AppendNodes(serverRow(s))
	}
	return html.Render(w, doc.Get(0))
}

// renderMirrorsPage 按上游顺序渲染镜像列表。
func renderMirrorsPage(w io.Writer, mirrors []*model.MirrorRecord) error {
	doc, body, err := loadSkeleton("static/mirrors.html")
	if err != nil {
		return err
	}
	for _, m := range mirrors {
		link := element(atom.A, html.Attribute{Key: "href", Val: m.URL})
		link.AppendChild(textNode(m.URL))
		body.AppendNodes(row(cell(textNode(m.Country)), cell(link)))
	}
	return html.Render(w, doc.Get(0))
}

func loadSkeleton(name string) (*goquery.Document, *goquery.Selection, error) {
	raw, err := staticFiles.ReadFile(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load page skeleton %s: %w", name, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse page skeleton %s: %w", name, err)
	}
	body := doc.Find(tableBodyID)
	if body.Length() == 0 {
		return nil, nil, fmt.Errorf("page skeleton %s has no %s element", name, tableBodyID)
	}
	return doc, body, nil
}

func serverRow(s *model.ServerRecord) *html.Node {
	l2tp := ""
	if s.L2TP {
		l2tp = "YES"
	}
	return row(
		cell(textNode(s.Country)),
		cell(textNode(s.IP)),
		cell(textNode(strconv.Itoa(s.Sessions)+" sessions")),
		cell(textNode(strconv.FormatFloat(s.Bandwidth, 'f', -1, 64)+" Mbps")),
		cell(textNode(l2tp)),
		cell(openVpnLinks(s)...),
		cell(textNode(s.Owner)),
		cell(textNode(scorePrinter.Sprintf("%d", s.Score))),
	)
}

// openVpnLinks 为每个可用协议生成一个下载链接，UDP 在前，多个链接之间用 <br> 分隔。
func openVpnLinks(s *model.ServerRecord) []*html.Node {
	if s.OpenVPN == nil {
		return nil
	}
	var nodes []*html.Node
	for i, p := range s.OpenVPN.Ports() {
		if i > 0 {
			nodes = append(nodes, element(atom.Br))
		}
		link := element(atom.A, html.Attribute{Key: "href", Val: openVpnHref(s.IP, p, s.OpenVPN.HID)})
		link.AppendChild(textNode(fmt.Sprintf("%s: Port %d", strings.ToUpper(p.Protocol), p.Port)))
		nodes = append(nodes, link)
	}
	return nodes
}

func openVpnHref(ip string, p model.PortEntry, hid int) string {
	return fmt.Sprintf("%s?ip=%s&protocol=%s&port=%d&hid=%d",
		openVpnEndpoint, url.QueryEscape(ip), url.QueryEscape(p.Protocol), p.Port, hid)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func cell(children ...*html.Node) *html.Node {
	td := element(atom.Td)
	for _, c := range children {
		td.AppendChild(c)
	}
	return td
}

func row(cells ...*html.Node) *html.Node {
	tr := element(atom.Tr)
	for _, c := range cells {
		tr.AppendChild(c)
	}
	return tr
}
