package script

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/chatrelay/internal/config"
)

// TextOptions controls how plain-text dialogs are turned into turns.
type TextOptions struct {
	// SenderCount is the number of senders turns rotate through.
	SenderCount int
	// ReplyMode is config.ReplyModePrevious or config.ReplyModeNone.
	ReplyMode string
}

// LoadFile picks a parser by extension: .json/.yaml/.yml are structured,
// anything else is plain text with one turn per line.
func LoadFile(path string, opts TextOptions) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read dialog: %v", config.ErrInvalid, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return ParseStructured(data)
	default:
		return ParseText(bytes.NewReader(data), opts)
	}
}

// ParseText reads one turn per non-empty line. Senders rotate by index and,
// in "previous" mode, every turn after the first replies to the turn before it.
func ParseText(r io.Reader, opts TextOptions) (*Script, error) {
	if opts.SenderCount <= 0 {
		return nil, fmt.Errorf("%w: sender count must be positive", config.ErrInvalid)
	}
	mode := opts.ReplyMode
	if mode == "" {
		mode = config.ReplyModePrevious
	}
	var turns []Turn
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		idx := len(turns)
		turn := Turn{Index: idx, Text: text, SenderID: idx % opts.SenderCount}
		if mode == config.ReplyModePrevious && idx > 0 {
			turn.ReplyTo = ReplyToTurn(idx - 1)
		}
		turns = append(turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read dialog: %v", config.ErrInvalid, err)
	}
	return build(turns)
}

type structuredTurn struct {
	Text    string    `yaml:"text"`
	Sender  *int      `yaml:"sender"`
	ReplyTo yaml.Node `yaml:"reply_to"`
}

type structuredTarget struct {
	Sender *int `yaml:"sender"`
	Turn   *int `yaml:"turn"`
}

// ParseStructured reads a YAML (or JSON) list of turns:
//
//	- text: "Hi"
//	  sender: 0
//	- text: "Hello"
//	  sender: 1
//	  reply_to: previous        # or {turn: 0} or {sender: 0}
func ParseStructured(data []byte) (*Script, error) {
	var raw []structuredTurn
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse dialog: %v", config.ErrInvalid, err)
	}
	turns := make([]Turn, 0, len(raw))
	for i, st := range raw {
		if st.Sender == nil {
			return nil, fmt.Errorf("%w: turn %d has no sender", config.ErrInvalid, i)
		}
		target, err := decodeTarget(i, &st.ReplyTo)
		if err != nil {
			return nil, err
		}
		turns = append(turns, Turn{
			Index:    i,
			Text:     strings.TrimSpace(st.Text),
			SenderID: *st.Sender,
			ReplyTo:  target,
		})
	}
	return build(turns)
}

func decodeTarget(index int, node *yaml.Node) (*ReplyTarget, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.ScalarNode {
		switch strings.ToLower(strings.TrimSpace(node.Value)) {
		case "", "null", "~", "none":
			return nil, nil
		case "previous":
			if index == 0 {
				return nil, nil
			}
			return ReplyToTurn(index - 1), nil
		default:
			return nil, fmt.Errorf("%w: turn %d: unknown reply_to %q", config.ErrInvalid, index, node.Value)
		}
	}
	var t structuredTarget
	if err := node.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: turn %d: reply_to: %v", config.ErrInvalid, index, err)
	}
	switch {
	case t.Sender != nil && t.Turn != nil:
		return nil, fmt.Errorf("%w: turn %d: reply_to must name a sender or a turn, not both", config.ErrInvalid, index)
	case t.Sender != nil:
		return ReplyToSender(*t.Sender), nil
	case t.Turn != nil:
		if *t.Turn < 0 || *t.Turn >= index {
			return nil, fmt.Errorf("%w: turn %d: reply_to turn %d is not an earlier turn", config.ErrInvalid, index, *t.Turn)
		}
		return ReplyToTurn(*t.Turn), nil
	default:
		return nil, nil
	}
}

func build(turns []Turn) (*Script, error) {
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: dialog is empty", config.ErrInvalid)
	}
	for _, t := range turns {
		if t.Text == "" {
			return nil, fmt.Errorf("%w: turn %d has empty text", config.ErrInvalid, t.Index)
		}
	}
	return &Script{Turns: turns}, nil
}
