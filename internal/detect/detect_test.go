package detect

import "testing"

func TestSniff_JSONReport(t *testing.T) {
	input := []byte(`{"run_id":"abc","summary":{"total":1},"results":[]}`)
	if got := Sniff(input); got != JSON {
		t.Errorf("expected JSON, got %v", got)
	}
}

func TestSniff_YAMLReport(t *testing.T) {
	input := []byte("run_id: abc\nsummary:\n  total: 1\nresults: []\n")
	if got := Sniff(input); got != YAML {
		t.Errorf("expected YAML, got %v", got)
	}
}

func TestSniff_YAMLWithDocumentMarker(t *testing.T) {
	input := []byte("---\n# saved by testrig\nsummary:\n  total: 0\n")
	if got := Sniff(input); got != YAML {
		t.Errorf("expected YAML, got %v", got)
	}
}

func TestSniff_Empty(t *testing.T) {
	if got := Sniff([]byte{}); got != Unknown {
		t.Errorf("expected Unknown, got %v", got)
	}
}

func TestSniff_PlainText(t *testing.T) {
	if got := Sniff([]byte("PASS\nok  \texample.com/pkg\t0.01s\n")); got != Unknown {
		t.Errorf("expected Unknown, got %v", got)
	}
}

func TestSniff_InvalidJSON(t *testing.T) {
	if got := Sniff([]byte(`{"run_id": `)); got != Unknown {
		t.Errorf("expected Unknown, got %v", got)
	}
}

func TestSniff_OtherJSON(t *testing.T) {
	if got := Sniff([]byte(`{"version":"2.1.0","runs":[]}`)); got != Unknown {
		t.Errorf("expected Unknown, got %v", got)
	}
}

func TestSniff_LeadingWhitespace(t *testing.T) {
	input := []byte("\n\n  {\"results\":[]}")
	if got := Sniff(input); got != JSON {
		t.Errorf("expected JSON, got %v", got)
	}
}

func TestFormat_String(t *testing.T) {
	if JSON.String() != "json" || YAML.String() != "yaml" || Unknown.String() != "unknown" {
		t.Error("unexpected format names")
	}
}
