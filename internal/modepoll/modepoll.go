// Package modepoll fetches the operating mode and schedule from the remote
// service.
package modepoll

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/oliveagle/jsonpath"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Default JSONPath expressions for the mode endpoint's response.
const DefaultModePath = "$.data.pumpMode"

// DefaultSlotPaths returns the expressions for the two daily slots.
func DefaultSlotPaths() []string {
	return []string{"$.data.firstTime", "$.data.secondTime"}
}

// Config describes the endpoint and where each field lives in its body.
type Config struct {
	URL       string
	ModePath  string
	SlotPaths []string
}

// Poller issues a single GET per poll.
type Poller struct {
	url    string
	client *http.Client
	mode   field
	slots  []field
}

type field struct {
	expr string
	path *jsonpath.Compiled
}

func compile(expr string) (field, error) {
	c, err := jsonpath.Compile(expr)
	if err != nil {
		return field{}, err
	}
	return field{expr: expr, path: c}, nil
}

// New compiles the configured paths. An empty ModePath or SlotPaths uses the
// defaults.
func New(cfg Config, client *http.Client) (*Poller, error) {
	if cfg.ModePath == "" {
		cfg.ModePath = DefaultModePath
	}
	if len(cfg.SlotPaths) == 0 {
		cfg.SlotPaths = DefaultSlotPaths()
	}

	mode, err := compile(cfg.ModePath)
	if err != nil {
		return nil, fmt.Errorf("compile mode path %q: %w", cfg.ModePath, err)
	}
	p := &Poller{url: cfg.URL, client: client, mode: mode}
	for _, expr := range cfg.SlotPaths {
		f, err := compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile slot path %q: %w", expr, err)
		}
		p.slots = append(p.slots, f)
	}
	return p, nil
}

// Poll fetches and decodes a complete ModeConfig. On any error the returned
// config is the zero value and must not be applied.
func (p *Poller) Poll(ctx context.Context) (logic.ModeConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return logic.ModeConfig{}, fmt.Errorf("%w: build request: %v", logic.ErrTransport, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return logic.ModeConfig{}, fmt.Errorf("%w: get mode: %v", logic.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return logic.ModeConfig{}, fmt.Errorf("%w: get mode: status %d", logic.ErrTransport, resp.StatusCode)
	}

	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return logic.ModeConfig{}, fmt.Errorf("%w: decode: %v", logic.ErrMalformedResponse, err)
	}
	return p.extract(body)
}

func (p *Poller) extract(body interface{}) (logic.ModeConfig, error) {
	modeStr, err := lookupString(p.mode, body)
	if err != nil {
		return logic.ModeConfig{}, err
	}

	literals := make([]string, 0, len(p.slots))
	for _, f := range p.slots {
		s, err := lookupString(f, body)
		if err != nil {
			return logic.ModeConfig{}, err
		}
		literals = append(literals, s)
	}
	sched, err := logic.ParseSchedule(literals)
	if err != nil {
		return logic.ModeConfig{}, fmt.Errorf("%w: %v", logic.ErrMalformedResponse, err)
	}

	return logic.ModeConfig{Mode: logic.ParseMode(modeStr), Schedule: sched}, nil
}

func lookupString(f field, body interface{}) (string, error) {
	v, err := f.path.Lookup(body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", logic.ErrMalformedResponse, f.expr, err)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s: want string, got %T", logic.ErrMalformedResponse, f.expr, v)
	}
	return s, nil
}
