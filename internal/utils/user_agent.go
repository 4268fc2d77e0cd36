package utils

import "strings"

const defaultMobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 18_7 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"

// DefaultMobileUserAgent 返回默认的手机端 UA。
func DefaultMobileUserAgent() string {
	return defaultMobileUserAgent
}

// NormalizeMobileUserAgent 把 UA 规范为手机端风格；目录服务只接受移动
// 客户端的查号请求，入参为空或不像手机 UA 时回退到默认值。
func NormalizeMobileUserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" {
		return defaultMobileUserAgent
	}
	if looksLikeMobileUA(v) {
		return v
	}
	return defaultMobileUserAgent
}

func looksLikeMobileUA(ua string) bool {
	s := strings.ToLower(ua)
	if strings.Contains(s, "mobile") {
		return true
	}
	if strings.Contains(s, "iphone") || strings.Contains(s, "android") || strings.Contains(s, "ipad") {
		return true
	}
	return false
}
