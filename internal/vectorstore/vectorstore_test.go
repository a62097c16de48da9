package vectorstore

import "testing"

func TestTableName_SanitizesHyphens(t *testing.T) {
	name, err := tableName("example-com-docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "docs_example_com_docs" {
		t.Errorf("expected docs_example_com_docs, got %q", name)
	}
}

func TestTableName_RejectsUnsafeNames(t *testing.T) {
	cases := []string{"", "-leading-dash", "has spaces", "has;semicolon", "DROP TABLE x"}
	for _, c := range cases {
		if _, err := tableName(c); err == nil {
			t.Errorf("expected error for unsafe index name %q", c)
		}
	}
}
