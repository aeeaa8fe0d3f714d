package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360/streamagent/errors"
)

// Defaults applied to requests that leave parameters out.
const (
	DefaultCount     = 100
	DefaultHeartbeat = 10 * time.Second
)

// CurrentRequest asks for the latest value of each selected item, or the
// value as of sequence At.
type CurrentRequest struct {
	Device string
	Path   string
	At     *uint64

	// Stream repeats the request every Interval.
	Stream   bool
	Interval time.Duration
}

// SampleRequest asks for the observations from sequence From onwards.
type SampleRequest struct {
	Device string
	Path   string
	From   *uint64
	Count  int

	// countDefaulted marks a Count the caller left out; it shrinks to the
	// buffer capacity instead of failing.
	countDefaulted bool

	// Stream continues from the returned next sequence every Interval and
	// sends an empty snapshot when nothing arrived within Heartbeat.
	Stream    bool
	Interval  time.Duration
	Heartbeat time.Duration
}

// AssetRequest selects assets. IDs, when set, must all exist.
type AssetRequest struct {
	IDs     []string
	Type    string
	Device  string
	Count   int
	Removed bool
}

// ParseCurrent reads path, at and interval from query parameters.
func ParseCurrent(deviceName string, v url.Values) (CurrentRequest, error) {
	req := CurrentRequest{Device: deviceName, Path: v.Get("path")}

	if s := v.Get("at"); s != "" {
		at, err := parseUint("at", s)
		if err != nil {
			return req, err
		}
		req.At = &at
	}
	interval, stream, err := parseInterval(v)
	if err != nil {
		return req, err
	}
	if stream && req.At != nil {
		return req, errors.InvalidRequest("'at' cannot be used with 'interval'")
	}
	req.Stream, req.Interval = stream, interval
	return req, nil
}

// ParseSample reads path, from, count, interval and heartbeat from query
// parameters.
func ParseSample(deviceName string, v url.Values) (SampleRequest, error) {
	req := SampleRequest{
		Device:         deviceName,
		Path:           v.Get("path"),
		Count:          DefaultCount,
		countDefaulted: true,
		Heartbeat:      DefaultHeartbeat,
	}

	if s := v.Get("from"); s != "" {
		from, err := parseUint("from", s)
		if err != nil {
			return req, err
		}
		req.From = &from
	}
	if s := v.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, errors.InvalidRequest("'count' must be an integer, got %q", s)
		}
		req.Count, req.countDefaulted = n, false
	}
	interval, stream, err := parseInterval(v)
	if err != nil {
		return req, err
	}
	req.Stream, req.Interval = stream, interval

	if s := v.Get("heartbeat"); s != "" {
		ms, err := strconv.Atoi(s)
		if err != nil || ms <= 0 {
			return req, errors.OutOfRange("'heartbeat' must be a positive number of milliseconds, got %q", s)
		}
		req.Heartbeat = time.Duration(ms) * time.Millisecond
	}
	return req, nil
}

// ParseAssets reads type, device, count and removed from query parameters.
// ids comes from the path, separated by ";".
func ParseAssets(ids string, v url.Values) (AssetRequest, error) {
	req := AssetRequest{Type: v.Get("type"), Device: v.Get("device"), Count: DefaultCount}
	for _, id := range strings.Split(ids, ";") {
		if id = strings.TrimSpace(id); id != "" {
			req.IDs = append(req.IDs, id)
		}
	}
	if s := v.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return req, errors.OutOfRange("'count' must be a positive integer, got %q", s)
		}
		req.Count = n
	}
	if s := v.Get("removed"); s != "" {
		removed, err := strconv.ParseBool(s)
		if err != nil {
			return req, errors.InvalidRequest("'removed' must be true or false, got %q", s)
		}
		req.Removed = removed
	}
	return req, nil
}

func parseUint(name, s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.InvalidRequest("'%s' must be a non-negative integer, got %q", name, s)
	}
	return n, nil
}

func parseInterval(v url.Values) (time.Duration, bool, error) {
	if !v.Has("interval") {
		return 0, false, nil
	}
	s := v.Get("interval")
	ms, err := strconv.Atoi(s)
	if err != nil || ms < 0 {
		return 0, false, errors.OutOfRange("'interval' must be a non-negative number of milliseconds, got %q", s)
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}
