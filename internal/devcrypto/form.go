package devcrypto

import "net/url"

// ParseFormBody decodes a form-encoded request body into a flat map,
// keeping blank values and taking the last occurrence of repeated keys,
// which is what the firmware's CGI layer does.
func ParseFormBody(raw []byte) map[string]string {
	fields := make(map[string]string)
	parsed, err := url.ParseQuery(string(raw))
	if err != nil {
		// The firmware parser is forgiving; salvage what url.ParseQuery
		// managed to collect before the error.
		_ = err
	}
	for key, values := range parsed {
		if len(values) == 0 {
			fields[key] = ""
			continue
		}
		fields[key] = values[len(values)-1]
	}
	return fields
}

// ParseSignPayload extracts the sign/data pair of an encrypted-framing
// request body.
func ParseSignPayload(raw []byte) (signHex, dataB64 string) {
	fields := ParseFormBody(raw)
	return fields["sign"], fields["data"]
}
