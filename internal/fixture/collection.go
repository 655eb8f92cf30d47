package fixture

import "strings"

// Collection is an ordered set of records keyed by hardware address.
// Lookups normalize addresses, so any separator/case mix a client sends
// resolves to the same record. Collections are not self-locking; profile
// modules serialize access with their own handler-scoped mutex.
type Collection struct {
	key     string
	records []Record
}

// NewCollection deep-clones the baseline records into a fresh collection.
// key names the address field ("mac" for every current dialect).
func NewCollection(key string, baseline []Record) *Collection {
	records := make([]Record, 0, len(baseline))
	for _, r := range baseline {
		records = append(records, r.Clone())
	}
	return &Collection{key: key, records: records}
}

// Len returns the number of records.
func (c *Collection) Len() int { return len(c.records) }

// All returns the live backing slice. Callers that hand records to a
// response must Clone them first.
func (c *Collection) All() []Record { return c.records }

// Find returns the live record for the address, or nil.
func (c *Collection) Find(mac string) Record {
	norm := NormalizeMAC(mac)
	for _, r := range c.records {
		if NormalizeMAC(r.String(c.key)) == norm {
			return r
		}
	}
	return nil
}

// First returns the first record satisfying match, or nil. A nil match
// selects the first record outright.
func (c *Collection) First(match func(Record) bool) Record {
	for _, r := range c.records {
		if match == nil || match(r) {
			return r
		}
	}
	return nil
}

// Append inserts a record as-is.
func (c *Collection) Append(r Record) { c.records = append(c.records, r) }

// Ensure returns the record for the address, synthesizing one on first
// reference: the first baseline record satisfying match is cloned as a
// template (an empty record if none qualifies), overrides are applied on
// top, and the result is inserted. Calling Ensure twice with the same
// unknown address yields the same record, not two synthesized ones.
func (c *Collection) Ensure(mac string, match func(Record) bool, overrides Record) Record {
	if existing := c.Find(mac); existing != nil {
		return existing
	}

	record := Record{}
	if template := c.First(match); template != nil {
		record = template.Clone()
	}
	for k, v := range overrides {
		record[k] = v
	}
	record[c.key] = strings.ToUpper(mac)
	c.Append(record)
	return record
}

// Index builds a normalized-address map of deep clones, the shape the
// detail tables (gateway/switch/AP specifics) are held in.
func Index(key string, baseline []Record) map[string]Record {
	out := make(map[string]Record, len(baseline))
	for _, r := range baseline {
		if mac := r.String(key); mac != "" {
			out[NormalizeMAC(mac)] = r.Clone()
		}
	}
	return out
}
