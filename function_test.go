package datastoreMatching

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestBatchEntryUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []batchEntry
	}{
		{
			name: "bare strings",
			in:   `["PostgreSQL 14.6", "Redis"]`,
			want: []batchEntry{{Name: "PostgreSQL 14.6"}, {Name: "Redis"}},
		},
		{
			name: "objects",
			in:   `[{"id": "ds-1", "name": "MySQL 8.0"}]`,
			want: []batchEntry{{ID: "ds-1", Name: "MySQL 8.0"}},
		},
		{
			name: "mixed",
			in:   `["Kafka 2.8", {"id": "ds-2", "name": "MongoDB"}]`,
			want: []batchEntry{{Name: "Kafka 2.8"}, {ID: "ds-2", Name: "MongoDB"}},
		},
		{
			name: "object without id",
			in:   `[{"name": "Splunk"}]`,
			want: []batchEntry{{Name: "Splunk"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []batchEntry
			if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %+v, expected %+v", got, tc.want)
			}
		})
	}
}

func TestBatchEntryUnmarshalRejectsGarbage(t *testing.T) {
	var got []batchEntry
	if err := json.Unmarshal([]byte(`[42]`), &got); err == nil {
		t.Error("expected an error for a numeric batch element")
	}
}

func TestResultKey(t *testing.T) {
	if got := resultKey("unmatched_datastores"); got != "datastore_match_result:unmatched_datastores" {
		t.Errorf("resultKey = %q", got)
	}
}
