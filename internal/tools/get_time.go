package tools

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sirupsen/logrus"
)

// DefaultTimezone is the storefront's local time zone.
const DefaultTimezone = "Asia/Ho_Chi_Minh"

// displayLayout renders time the way Vietnamese customers read it.
const displayLayout = "15:04:05 02/01/2006"

// Clock supplies the current time in the storefront location.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// NewClock returns a wall clock for the named zone, falling back to UTC.
func NewClock(timezone string) *Clock {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logrus.Warnf("Unknown timezone %q, using UTC: %v", timezone, err)
		loc = time.UTC
	}
	return &Clock{Now: time.Now, Location: loc}
}

// FixedClock always reports t.
func FixedClock(t time.Time) *Clock {
	return &Clock{
		Now:      func() time.Time { return t },
		Location: t.Location(),
	}
}

func (c *Clock) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	if c.Location == nil {
		return c.Now()
	}
	return c.Now().In(c.Location)
}

// GetTime reports the current storefront time. It takes no arguments and cannot fail.
type GetTime struct {
	clock *Clock
}

// NewGetTime creates the get_time tool.
func NewGetTime(clock *Clock) *GetTime {
	if clock == nil {
		clock = NewClock(DefaultTimezone)
	}
	return &GetTime{clock: clock}
}

func (g *GetTime) Name() Name {
	return NameGetTime
}

func (g *GetTime) Definition() openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
		Name:        string(NameGetTime),
		Description: openai.String("Lấy ngày giờ hiện tại của cửa hàng."),
		Parameters: shared.FunctionParameters{
			"type":       "object",
			"properties": map[string]any{},
		},
	})
}

func (g *GetTime) Call(_ context.Context, _ map[string]any) (Result, error) {
	now := g.clock.now()
	return TimeResult{
		ISO:      now.Format(time.RFC3339),
		Display:  now.Format(displayLayout),
		Timezone: now.Location().String(),
	}, nil
}
