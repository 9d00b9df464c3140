package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reSepRun  = regexp.MustCompile(`[\s_]+`)
	reNonWord = regexp.MustCompile(`[^a-z0-9 ]`)
	reDays    = regexp.MustCompile(`^(\d+)\s+days?,?\s+(.*)$`)
)

// NormalizeHeader 表头归一化：小写、去首尾空格、空白/下划线折叠为单个空格、去掉其它符号
func NormalizeHeader(h string) string {
	s := strings.ToLower(strings.TrimSpace(h))
	s = reSepRun.ReplaceAllString(s, " ")
	return reNonWord.ReplaceAllString(s, "")
}

// ParseCount 计数列转整数，非法值记 0
func ParseCount(s string) int {
	v := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// ParseDuration 时长转秒：HH:MM:SS、MM:SS、"N days HH:MM:SS" 或纯秒数；非法值返回 false
func ParseDuration(s string) (float64, bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, false
	}
	days := 0.0
	if m := reDays.FindStringSubmatch(v); m != nil {
		d, _ := strconv.Atoi(m[1])
		days = float64(d)
		v = strings.TrimSpace(m[2])
	}

	parts := strings.Split(v, ":")
	var h, m, sec float64
	var err error
	switch len(parts) {
	case 1:
		sec, err = strconv.ParseFloat(parts[0], 64)
	case 2:
		if m, err = parseInt(parts[0]); err == nil {
			sec, err = strconv.ParseFloat(parts[1], 64)
		}
	case 3:
		if h, err = parseInt(parts[0]); err == nil {
			if m, err = parseInt(parts[1]); err == nil {
				sec, err = strconv.ParseFloat(parts[2], 64)
			}
		}
	default:
		return 0, false
	}
	if err != nil || sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, false
	}
	return days*86400 + h*3600 + m*60 + sec, true
}

func parseInt(s string) (float64, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative component %d", n)
	}
	return float64(n), nil
}

// DurationSeconds 非法时长记 0
func DurationSeconds(s string) float64 {
	v, _ := ParseDuration(s)
	return v
}

// FormatHMS 秒数四舍五入后格式化为补零的 HH:MM:SS
func FormatHMS(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatSeconds 辅助列中的秒数
func FormatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ContainsAny 检查字符串是否包含任意一个关键词
func ContainsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
