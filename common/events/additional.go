package events

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// Reserved keys of the additional data mapping.
const (
	KeyHTTPHeaders       = "httpHeaders"
	KeyRequestParameters = "requestParameters"
	KeyRemoteAddress     = "remoteAddress"
	KeyRemoteHost        = "remoteHost"
	KeyRemotePort        = "remotePort"
)

// MaskedValue replaces the value of sensitive headers.
const MaskedValue = "***MASKED***"

// AdditionalData is the structured view of an event's additional data. Keys
// outside the reserved set are kept in Extra.
type AdditionalData struct {
	HTTPHeaders       map[string]string
	RequestParameters map[string][]string
	RemoteAddress     string
	RemoteHost        string
	RemotePort        string
	Extra             map[string]any
}

// HeaderNames returns the header names in sorted order.
func (a AdditionalData) HeaderNames() []string {
	return sortedKeys(a.HTTPHeaders)
}

// ParameterNames returns the request parameter names in sorted order.
func (a AdditionalData) ParameterNames() []string {
	return sortedKeys(a.RequestParameters)
}

// HasRemoteInfo reports whether any remote-info field is set.
func (a AdditionalData) HasRemoteInfo() bool {
	return a.RemoteAddress != "" || a.RemoteHost != "" || a.RemotePort != ""
}

// ParseAdditionalData splits raw into the reserved sections. Values of
// unexpected shape are stringified rather than rejected. A blob that is not a
// JSON object yields an error and an empty result.
func ParseAdditionalData(raw []byte) (AdditionalData, error) {
	var out AdditionalData
	if len(raw) == 0 || isJSONNull(raw) {
		return out, nil
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return out, fmt.Errorf("additional data is not a JSON object: %w", err)
	}

	for key, value := range fields {
		switch key {
		case KeyHTTPHeaders:
			if m, ok := value.(map[string]any); ok {
				out.HTTPHeaders = make(map[string]string, len(m))
				for k, v := range m {
					out.HTTPHeaders[k] = stringify(v)
				}
				continue
			}
		case KeyRequestParameters:
			if m, ok := value.(map[string]any); ok {
				out.RequestParameters = make(map[string][]string, len(m))
				for k, v := range m {
					out.RequestParameters[k] = stringList(v)
				}
				continue
			}
		case KeyRemoteAddress:
			out.RemoteAddress = stringify(value)
			continue
		case KeyRemoteHost:
			out.RemoteHost = stringify(value)
			continue
		case KeyRemotePort:
			out.RemotePort = stringify(value)
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[key] = value
	}

	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func stringList(v any) []string {
	if list, ok := v.([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, stringify(item))
		}
		return out
	}
	return []string{stringify(v)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
