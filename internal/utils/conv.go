package utils

import (
	"strconv"
	"strings"
)

// StringToInt 字符串转 int，出错返回 0
func StringToInt(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

// StringToUint 解析正整数 ID，空串、0 或非法输入时 ok 为 false
func StringToUint(s string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// FormBool 复选框取值，"1"、"true"、"on"、"yes" 视为 true
func FormBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// TruncateRunes 按字符截断到 n 个
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
