package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/store"
)

// command handles a "* ..." line with the leading star removed.
func (p *Parser) command(body string) Result {
	upper := strings.ToUpper(body)
	switch {
	case upper == "PING" || strings.HasPrefix(upper, "PING "):
		return Result{Reply: fmt.Sprintf("* PONG %d", p.pongTimeout.Milliseconds())}
	case strings.HasPrefix(upper, "PONG"):
		ms, err := strconv.Atoi(strings.TrimSpace(body[len("PONG"):]))
		if err != nil || ms <= 0 {
			p.reject(rejectCommand)
			p.logger.Debug("Malformed PONG", "line", body)
			return Result{}
		}
		return Result{Heartbeat: time.Duration(ms) * time.Millisecond}
	}

	key, value, ok := strings.Cut(body, ":")
	if !ok {
		p.reject(rejectCommand)
		p.logger.Debug("Malformed command", "line", body)
		return Result{}
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if err := p.applySetting(key, value); err != nil {
		p.reject(rejectCommand)
		p.logger.Warn("Command rejected", "key", key, "device", p.device, "error", err)
	}
	return Result{}
}

// applySetting routes a "key: value" command to the device options, the
// device identity or the parser's default device.
func (p *Parser) applySetting(key, value string) error {
	if strings.EqualFold(key, "device") {
		d, ok := p.registry.Device(value)
		if !ok {
			return errors.NoDevice(value)
		}
		p.device = d.Name
		return nil
	}

	handled, err := p.configs.Apply(p.device, key, value)
	if handled {
		return err
	}

	switch strings.ToLower(key) {
	case "uuid":
		if p.configs.Get(p.device).PreserveUUID {
			p.logger.Debug("Keeping configured uuid", "device", p.device, "uuid", value)
			return nil
		}
		return p.registry.SetIdentity(p.device, key, value)
	case "manufacturer", "serialnumber", "station", "description":
		return p.registry.SetIdentity(p.device, key, value)
	}

	p.logger.Debug("Ignoring unsupported setting", "key", key, "value", value)
	return nil
}

// assetCommand handles @ASSET@, @UPDATE_ASSET@, @REMOVE_ASSET@ and
// @REMOVE_ALL_ASSETS@, optionally prefixed with "device:".
func (p *Parser) assetCommand(fields []string, ts time.Time) Result {
	dev, cmd := p.device, strings.TrimSpace(fields[1])
	if d, c, ok := strings.Cut(cmd, ":"); ok {
		dev, cmd = d, c
	}
	args := fields[2:]
	arg := func(i int) string {
		if i < len(args) {
			return strings.TrimSpace(args[i])
		}
		return ""
	}

	var err error
	switch strings.ToUpper(cmd) {
	case "@ASSET@":
		id, typ := arg(0), arg(1)
		if id == "" || typ == "" || len(args) < 3 {
			err = fmt.Errorf("@ASSET@ needs id, type and document")
			break
		}
		doc := strings.Join(args[2:], "|")
		if tag := strings.TrimSpace(doc); strings.HasPrefix(tag, multilinePrefix) {
			p.multiline = &multilineAsset{tag: tag, id: id, typ: typ, device: dev, ts: ts}
			return Result{}
		}
		_, err = p.ingestor.PutAsset(store.Asset{ID: id, Type: typ, Device: dev, Timestamp: ts, Document: doc}, true)

	case "@UPDATE_ASSET@":
		if arg(0) == "" || len(args) < 2 {
			err = fmt.Errorf("@UPDATE_ASSET@ needs an id and changes")
			break
		}
		changes := args[1:]
		if strings.HasPrefix(strings.TrimSpace(changes[0]), "<") {
			changes = []string{strings.Join(changes, "|")}
		}
		_, err = p.ingestor.UpdateAsset(arg(0), changes, ts)

	case "@REMOVE_ASSET@":
		if arg(0) == "" {
			err = fmt.Errorf("@REMOVE_ASSET@ needs an id")
			break
		}
		_, err = p.ingestor.RemoveAsset(arg(0), ts)

	case "@REMOVE_ALL_ASSETS@":
		if arg(0) == "" {
			err = fmt.Errorf("@REMOVE_ALL_ASSETS@ needs a type")
			break
		}
		_, err = p.ingestor.RemoveAllAssets(dev, arg(0), ts)

	default:
		err = fmt.Errorf("unknown asset command %q", cmd)
	}

	if err != nil {
		p.reject(rejectAsset)
		p.logger.Warn("Asset command failed", "command", cmd, "device", dev, "error", err)
		return Result{}
	}
	return Result{Applied: 1}
}
