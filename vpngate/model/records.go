package model

// ServerRecord 描述 VPN Gate 服务器列表中的一行。
// 每次请求时从上游页面重新解析生成，构造后不再修改。
type ServerRecord struct {
	Country   string       `json:"country"`
	IP        string       `json:"ip"`
	Sessions  int          `json:"sessions"`
	Bandwidth float64      `json:"bandwidth"` // Mbps
	L2TP      bool         `json:"l2tp"`
	OpenVPN   *OpenVpnInfo `json:"openvpn,omitempty"` // 仅当上游声明支持 OpenVPN 时存在
	Owner     string       `json:"owner"`
	Score     int          `json:"score"`
}

// Reachable 报告该服务器是否支持本站展示的任一协议 (L2TP 或 OpenVPN)。
func (s *ServerRecord) Reachable() bool {
	return s.L2TP || s.OpenVPN != nil
}

// OpenVpnInfo 是 OpenVPN 下载所需的信息。
// UDP 与 TCP 至少存在一个。
type OpenVpnInfo struct {
	// HID 是上游配置下载接口使用的不透明令牌。
	HID int  `json:"hid"`
	UDP *int `json:"udp,omitempty"`
	TCP *int `json:"tcp,omitempty"`
}

// PortEntry 是一个协议/端口对。
type PortEntry struct {
	Protocol string
	Port     int
}

// Ports returns the advertised protocol/port pairs, UDP first.
func (o *OpenVpnInfo) Ports() []PortEntry {
	var ports []PortEntry
	if o.UDP != nil {
		ports = append(ports, PortEntry{Protocol: "udp", Port: *o.UDP})
	}
	if o.TCP != nil {
		ports = append(ports, PortEntry{Protocol: "tcp", Port: *o.TCP})
	}
	return ports
}

// MirrorRecord 是一个 VPN Gate 镜像站点。
type MirrorRecord struct {
	URL     string `json:"url"`
	Country string `json:"country"`
}
