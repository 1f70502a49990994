package decode

import "testing"

func TestParseDeclaredCharset(t *testing.T) {
	// Some feeds declare a charset in the XML prolog even though the payload
	// arrives as an already-decoded string; the parser must accept it as-is.
	payload := `<?xml version="1.0" encoding="ISO-8859-1"?>
<msg><body code="A1">hello</body></msg>`

	root, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Name != "msg" {
		t.Errorf("root = %q, want msg", root.Name)
	}
	if got := root.PathText("body"); got != "hello" {
		t.Errorf("body text = %q, want hello", got)
	}
	if got := root.Child("body").AttrValue("code"); got != "A1" {
		t.Errorf("code attr = %q, want A1", got)
	}
}

func TestParseNamespacePrefixesStripped(t *testing.T) {
	payload := `<ns2:outer xmlns:ns2="urn:example" ns2:kind="x"><ns2:inner xsi:nil="true" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"/></ns2:outer>`

	root, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Name != "outer" || root.AttrValue("kind") != "x" {
		t.Errorf("root = %q attrs %v", root.Name, root.Attrs)
	}
	inner := root.Child("inner")
	if inner == nil || !inner.IsNil() {
		t.Errorf("inner = %+v, want xsi:nil recognized by local name", inner)
	}
}
