package collector

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const statsWindow = 10 * time.Second

// stats tracks message throughput and size statistics.
type stats struct {
	msgTimes      []time.Time
	totalMessages int64
	totalBytes    int64
	dropped       int64
}

// record logs a message arrival.
func (s *stats) record(t time.Time, bodySize int) {
	s.msgTimes = append(s.msgTimes, t)
	s.totalMessages++
	s.totalBytes += int64(bodySize)
}

// drop counts a message that did not reach the log file.
func (s *stats) drop() {
	s.dropped++
}

// msgPerSec returns the message rate over the rolling window.
func (s *stats) msgPerSec(now time.Time) float64 {
	s.trim(now)
	if len(s.msgTimes) == 0 {
		return 0
	}

	elapsed := now.Sub(s.msgTimes[0]).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(len(s.msgTimes)) / elapsed
}

// trim drops arrivals older than the window so a long-running collector
// does not keep every timestamp.
func (s *stats) trim(now time.Time) {
	cutoff := now.Add(-statsWindow)
	i := 0
	for i < len(s.msgTimes) && s.msgTimes[i].Before(cutoff) {
		i++
	}
	s.msgTimes = s.msgTimes[i:]
}

// avgSize returns average message body size in bytes.
func (s *stats) avgSize() int64 {
	if s.totalMessages == 0 {
		return 0
	}
	return s.totalBytes / s.totalMessages
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f msg/s", rate)
}

func formatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}
