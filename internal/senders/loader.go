package senders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wolfman30/chatrelay/internal/config"
)

// LoadFile reads a credential file, one "name:token" or
// "name:token:min:max" entry per line.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open senders file: %v", config.ErrInvalid, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads credential lines from r. Blank lines and lines starting with
// '#' are skipped.
func Parse(r io.Reader) (*Registry, error) {
	var list []Sender
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: senders line %d: %v", config.ErrInvalid, lineNo, err)
		}
		list = append(list, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read senders: %v", config.ErrInvalid, err)
	}
	return NewRegistry(list)
}

func parseLine(line string) (Sender, error) {
	parts := strings.Split(line, ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 2:
		return Sender{DisplayName: parts[0], Secret: parts[1]}, nil
	case 4:
		min, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return Sender{}, fmt.Errorf("invalid min delay %q", parts[2])
		}
		max, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return Sender{}, fmt.Errorf("invalid max delay %q", parts[3])
		}
		return Sender{DisplayName: parts[0], Secret: parts[1], MinDelay: min, MaxDelay: max}, nil
	default:
		return Sender{}, fmt.Errorf("expected name:token or name:token:min:max, got %d fields", len(parts))
	}
}
