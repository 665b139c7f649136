package utils

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// PosterID 生成每日轮换的匿名 ID (ip|ua|日期|secret)
func PosterID(ip, ua, secret string, now time.Time) string {
	day := now.UTC().Format("2006-01-02")
	sum := blake2b.Sum256([]byte(ip + "|" + ua + "|" + day + "|" + secret))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}
