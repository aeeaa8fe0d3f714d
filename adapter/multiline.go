package adapter

import (
	"strings"
	"time"

	"github.com/c360/streamagent/store"
)

const multilinePrefix = "--multiline--"

// multilineAsset collects the raw lines of an asset document sent between
// two identical --multiline--TAG markers.
type multilineAsset struct {
	tag    string
	id     string
	typ    string
	device string
	ts     time.Time
	lines  []string
}

// continueMultiline buffers line verbatim until the closing marker, then
// stores the assembled document.
func (p *Parser) continueMultiline(line string) Result {
	m := p.multiline
	if strings.TrimSpace(line) != m.tag {
		m.lines = append(m.lines, line)
		return Result{}
	}

	p.multiline = nil
	_, err := p.ingestor.PutAsset(store.Asset{
		ID:        m.id,
		Type:      m.typ,
		Device:    m.device,
		Timestamp: m.ts,
		Document:  strings.Join(m.lines, "\n"),
	}, true)
	if err != nil {
		p.reject(rejectAsset)
		p.logger.Warn("Multiline asset rejected", "asset", m.id, "error", err)
		return Result{}
	}
	return Result{Applied: 1}
}

// Collecting reports whether the parser is inside a multiline asset.
func (p *Parser) Collecting() bool { return p.multiline != nil }
