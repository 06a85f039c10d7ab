package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"autogate/vpngate/model"
)

const (
	serversPage = "servers"

	headerCellClass = "vg_table_header"
	minServerCells  = 10
)

// 服务器列表页的列位置
const (
	colCountry   = 0
	colIP        = 1
	colSessions  = 2
	colBandwidth = 3
	colL2TP      = 5
	colOpenVPN   = 6
	colOwner     = 8
	colScore     = 9
)

// serverPage 是解析后的服务器列表页。上游会把一部分 <tr> 输出到 </html> 之后，
// 因此页面被拆成主文档和尾部片段两部分分别解析。
type serverPage struct {
	doc      *goquery.Document
	trailing *goquery.Selection
}

// rowSource 描述一个行来源及其首尾裁剪规则。
type rowSource struct {
	name     string
	locate   func(p *serverPage) (*goquery.Selection, error)
	skipHead int
	skipTail int
}

// serverRowSources 按顺序拼接：先主表格 (跳过两行表头)，再 </html> 之后的行 (跳过末尾一行)。
var serverRowSources = []rowSource{
	{
		name: "inner_table",
		locate: func(p *serverPage) (*goquery.Selection, error) {
			table := p.doc.Find("#vpngate_inner_table").First()
			if table.Length() == 0 {
				return nil, pageError(serversPage, "table", "#vpngate_inner_table not found")
			}
			return table.ChildrenFiltered("tbody").ChildrenFiltered("tr"), nil
		},
		skipHead: 2,
	},
	{
		name: "trailing",
		locate: func(p *serverPage) (*goquery.Selection, error) {
			return p.trailing.ChildrenFiltered("tr"), nil
		},
		skipTail: 1,
	},
}

func (rs rowSource) rows(p *serverPage) ([]*goquery.Selection, error) {
	sel, err := rs.locate(p)
	if err != nil {
		return nil, err
	}
	end := sel.Length() - rs.skipTail
	var rows []*goquery.Selection
	for i := rs.skipHead; i < end; i++ {
		rows = append(rows, sel.Eq(i))
	}
	return rows, nil
}

// ParseServerList 把服务器列表页解析为记录列表。
// 任何一行不符合预期格式都会返回 *ParseError，不返回部分结果。
func ParseServerList(markup []byte) ([]*model.ServerRecord, error) {
	page, err := loadServerPage(markup)
	if err != nil {
		return nil, err
	}

	var rows []*goquery.Selection
	for _, src := range serverRowSources {
		srcRows, err := src.rows(page)
		if err != nil {
			return nil, err
		}
		rows = append(rows, srcRows...)
	}

	servers := make([]*model.ServerRecord, 0, len(rows))
	for i, row := range rows {
		cells := row.ChildrenFiltered("td")
		if cells.Length() > 0 && cells.First().HasClass(headerCellClass) {
			continue
		}
		server, err := parseServerRow(i, cells)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func loadServerPage(markup []byte) (*serverPage, error) {
	head, tail := splitAtDocumentEnd(markup)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(head))
	if err != nil {
		return nil, pageError(serversPage, "document", err.Error())
	}

	// 尾部的行按 <tbody> 上下文解析，否则 HTML5 解析器会丢弃游离的 <tr>。
	tbody := &html.Node{Type: html.ElementNode, DataAtom: atom.Tbody, Data: "tbody"}
	if len(bytes.TrimSpace(tail)) > 0 {
		nodes, err := html.ParseFragment(bytes.NewReader(tail), tbody)
		if err != nil {
			return nil, pageError(serversPage, "trailing rows", err.Error())
		}
		for _, n := range nodes {
			tbody.AppendChild(n)
		}
	}

	return &serverPage{
		doc:      doc,
		trailing: goquery.NewDocumentFromNode(tbody).Selection,
	}, nil
}

// splitAtDocumentEnd 在最后一个 </html> 处切分页面。
func splitAtDocumentEnd(markup []byte) (head, tail []byte) {
	idx := bytes.LastIndex(bytes.ToLower(markup), []byte("</html>"))
	if idx < 0 {
		return markup, nil
	}
	end := idx + len("</html>")
	return markup[:end], markup[end:]
}

func parseServerRow(row int, cells *goquery.Selection) (*model.ServerRecord, error) {
	if cells.Length() < minServerCells {
		return nil, rowError(serversPage, row, "cells",
			fmt.Errorf("expected at least %d cells, got %d", minServerCells, cells.Length()))
	}

	country := strings.TrimSpace(cells.Eq(colCountry).Text())
	if country == "" {
		return nil, rowError(serversPage, row, "country", errors.New("empty country cell"))
	}

	ipSpan := cells.Eq(colIP).Find("br + span").First()
	if ipSpan.Length() == 0 {
		return nil, rowError(serversPage, row, "ip", errors.New("missing <span> after <br>"))
	}
	ip := strings.TrimSpace(ipSpan.Text())

	sessions, err := parseEmphasized(cells.Eq(colSessions), sessionsField)
	if err != nil {
		return nil, rowError(serversPage, row, sessionsField.name, err)
	}

	bandwidth, err := parseEmphasized(cells.Eq(colBandwidth), bandwidthField)
	if err != nil {
		return nil, rowError(serversPage, row, bandwidthField.name, err)
	}

	openVPN, err := parseOpenVpnCell(cells.Eq(colOpenVPN))
	if err != nil {
		return nil, rowError(serversPage, row, "openvpn", err)
	}

	owner, err := parseOwnerCell(cells.Eq(colOwner))
	if err != nil {
		return nil, rowError(serversPage, row, ownerField.name, err)
	}

	score, err := parseEmphasized(cells.Eq(colScore), scoreField)
	if err != nil {
		return nil, rowError(serversPage, row, scoreField.name, err)
	}

	return &model.ServerRecord{
		Country:   country,
		IP:        ip,
		Sessions:  sessions,
		Bandwidth: bandwidth,
		L2TP:      cells.Eq(colL2TP).Contents().Length() != 0,
		OpenVPN:   openVPN,
		Owner:     owner,
		Score:     score,
	}, nil
}

// parseEmphasized 读取单元格中第一个 <b> 内第一个 <span> 的文本。
func parseEmphasized[T any](cell *goquery.Selection, field fieldPattern[T]) (T, error) {
	var zero T
	span := cell.Find("b").First().Find("span").First()
	if span.Length() == 0 {
		return zero, errors.New("missing <b><span> element")
	}
	return field.parse(strings.TrimSpace(span.Text()))
}

// parseOwnerCell 返回 <i><b> 中的所有者名称，不存在时返回空字符串。
func parseOwnerCell(cell *goquery.Selection) (string, error) {
	b := cell.Find("i").First().Find("b").First()
	if b.Length() == 0 {
		return "", nil
	}
	return ownerField.parse(strings.TrimSpace(b.Text()))
}

// parseOpenVpnCell 解析 OpenVPN 单元格。空单元格表示不支持 OpenVPN。
func parseOpenVpnCell(cell *goquery.Selection) (*model.OpenVpnInfo, error) {
	if cell.Contents().Length() == 0 {
		return nil, nil
	}

	link := cell.Find("a").First()
	if link.Length() == 0 {
		return nil, errors.New("missing download link")
	}
	href, ok := link.Attr("href")
	if !ok {
		return nil, errors.New("download link has no href")
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("invalid download link %q: %w", href, err)
	}
	hidStr := u.Query().Get("hid")
	if hidStr == "" {
		return nil, fmt.Errorf("download link %q has no hid parameter", href)
	}
	hid, err := strconv.Atoi(hidStr)
	if err != nil || hid <= 0 {
		return nil, fmt.Errorf("invalid hid %q", hidStr)
	}

	// 上游保证最多两个端口描述 (UDP / TCP)，第二个可能在 <br> 之后。
	descriptors := textLinesAfter(link.Get(0))
	if len(descriptors) == 0 {
		return nil, errors.New("no port descriptors after download link")
	}
	if len(descriptors) > 2 {
		return nil, fmt.Errorf("expected at most 2 port descriptors, got %d", len(descriptors))
	}

	info := &model.OpenVpnInfo{HID: hid}
	for _, d := range descriptors {
		entry, err := portField.parse(d)
		if err != nil {
			return nil, err
		}
		port := entry.Port
		switch entry.Protocol {
		case "udp":
			info.UDP = &port
		case "tcp":
			info.TCP = &port
		}
	}
	return info, nil
}

// textLinesAfter 收集 start 之后所有兄弟节点中的文本，按 <br> 分行，去掉空行。
func textLinesAfter(start *html.Node) []string {
	var lines []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			cur.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			flush()
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
	}

	for n := start.NextSibling; n != nil; n = n.NextSibling {
		walk(n)
	}
	flush()
	return lines
}
