package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// LogBuffer keeps the most recent log lines for GET /api/logs. It is used
// as the logger sink.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines}
}

// Write implements io.Writer. Bytes after the last newline are held until
// the line is completed by a later write.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLineLocked(string(data[:i]))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)

	return len(p), nil
}

func (b *LogBuffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = b.lines[over:]
		b.dropped += uint64(over)
	}
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

// Snapshot returns the last tail lines (200 when tail <= 0) and the number
// of lines evicted so far.
func (b *LogBuffer) Snapshot(tail int) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped = b.dropped
	if tail <= 0 {
		tail = 200
	}
	if tail > len(b.lines) {
		tail = len(b.lines)
	}
	start := len(b.lines) - tail
	lines = append([]string{}, b.lines[start:]...)
	return lines, dropped
}

func (s *Server) onLogs(c *gin.Context) {
	if s.Logs == nil {
		s.writeError(c, http.StatusNotFound, fmt.Errorf("log buffer disabled"))
		return
	}

	tail := 200
	if v := strings.TrimSpace(c.Query("tail")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 5000 {
			s.writeError(c, http.StatusBadRequest, fmt.Errorf("tail must be an integer in [1,5000]"))
			return
		}
		tail = n
	}

	lines, dropped := s.Logs.Snapshot(tail)

	if strings.EqualFold(c.Query("format"), "text") {
		var body strings.Builder
		if dropped > 0 {
			fmt.Fprintf(&body, "[dropped=%d]\n", dropped)
		}
		for _, line := range lines {
			body.WriteString(line)
			body.WriteByte('\n')
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body.String()))
		return
	}

	c.JSON(http.StatusOK, LogsResponse{
		NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
		Dropped: dropped,
		Lines:   lines,
	})
}
