package process

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseMemory converts a human byte count ("512K", "100M", "2G", "1048576")
// into bytes. An empty string means no ceiling.
func ParseMemory(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1 << 10
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "G"), strings.HasSuffix(s, "g"):
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory value %q", s)
	}
	return n * mult, nil
}

// FormatMemory renders bytes with a binary suffix, matching the list output.
func FormatMemory(b uint64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1fgb", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1fmb", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1fkb", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%db", b)
	}
}

// FormatMemorySuffix renders bytes in the K/M/G form ParseMemory accepts.
func FormatMemorySuffix(b uint64) string {
	switch {
	case b >= 1<<30 && b%(1<<30) == 0:
		return fmt.Sprintf("%dG", b>>30)
	case b >= 1<<20 && b%(1<<20) == 0:
		return fmt.Sprintf("%dM", b>>20)
	case b >= 1<<10 && b%(1<<10) == 0:
		return fmt.Sprintf("%dK", b>>10)
	default:
		return strconv.FormatUint(b, 10)
	}
}

// FormatDuration renders an uptime compactly: 42s, 3m, 5h, 2d.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
