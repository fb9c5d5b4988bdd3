package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	appconfig "github.com/wolfman30/chatrelay/internal/config"
)

// promptAnswers holds the raw form input until it is applied to the config.
type promptAnswers struct {
	channelID string
	replyMin  string
	replyMax  string
	pauseMin  string
	pauseMax  string
}

// promptMissing asks the operator for the channel id and, in global delay
// mode, the four timing bounds when the environment left them unset.
func promptMissing(cfg *appconfig.Config) error {
	var answers promptAnswers
	form := newPromptForm(cfg, &answers)
	if form == nil {
		return nil
	}
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return fmt.Errorf("%w: prompt aborted", appconfig.ErrInvalid)
		}
		return fmt.Errorf("prompt: %w", err)
	}
	return answers.apply(cfg)
}

// newPromptForm returns nil when nothing needs asking.
func newPromptForm(cfg *appconfig.Config, a *promptAnswers) *huh.Form {
	var groups []*huh.Group
	if cfg.ChannelID == "" {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title("Channel ID").
				Description("Numeric id of the channel to post in.").
				Value(&a.channelID).
				Validate(validateChannelID),
		))
	}
	if needsTimingBounds(cfg) {
		groups = append(groups,
			boundsGroup("reply delay", &a.replyMin, &a.replyMax),
			boundsGroup("pause delay", &a.pauseMin, &a.pauseMax),
		)
	}
	if len(groups) == 0 {
		return nil
	}
	return huh.NewForm(groups...)
}

func needsTimingBounds(cfg *appconfig.Config) bool {
	return cfg.DelayMode == appconfig.DelayModeGlobal && !cfg.HasTimingBounds()
}

func boundsGroup(name string, min, max *string) *huh.Group {
	return huh.NewGroup(
		huh.NewInput().
			Title(fmt.Sprintf("Minimum %s (seconds)", name)).
			Value(min).
			Validate(func(s string) error { return validateMinSeconds(name, s) }),
		huh.NewInput().
			Title(fmt.Sprintf("Maximum %s (seconds)", name)).
			Value(max).
			Validate(func(s string) error { return validateMaxSeconds(name, *min, s) }),
	)
}

func validateChannelID(s string) error {
	if !appconfig.IsDigits(strings.TrimSpace(s)) {
		return errors.New("channel id must contain digits only")
	}
	return nil
}

func validateMinSeconds(name, s string) error {
	v, err := parseSeconds(s)
	if err != nil {
		return err
	}
	return appconfig.ValidateBounds(name, v, v)
}

func validateMaxSeconds(name, rawMin, rawMax string) error {
	min, err := parseSeconds(rawMin)
	if err != nil {
		return err
	}
	max, err := parseSeconds(rawMax)
	if err != nil {
		return err
	}
	return appconfig.ValidateBounds(name, min, max)
}

func parseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

// apply copies validated answers into cfg. Empty answers leave cfg alone.
func (a promptAnswers) apply(cfg *appconfig.Config) error {
	if id := strings.TrimSpace(a.channelID); id != "" {
		if err := validateChannelID(id); err != nil {
			return fmt.Errorf("%w: %v", appconfig.ErrInvalid, err)
		}
		cfg.ChannelID = id
	}
	if a.replyMin == "" && a.replyMax == "" && a.pauseMin == "" && a.pauseMax == "" {
		return nil
	}
	values := make([]float64, 4)
	for i, raw := range []string{a.replyMin, a.replyMax, a.pauseMin, a.pauseMax} {
		v, err := parseSeconds(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", appconfig.ErrInvalid, err)
		}
		values[i] = v
	}
	if err := appconfig.ValidateBounds("reply delay", values[0], values[1]); err != nil {
		return err
	}
	if err := appconfig.ValidateBounds("pause delay", values[2], values[3]); err != nil {
		return err
	}
	cfg.ReplyDelayMin, cfg.ReplyDelayMax = values[0], values[1]
	cfg.PauseDelayMin, cfg.PauseDelayMax = values[2], values[3]
	return nil
}
