package guetzli

import "testing"

func TestSourceTypeFromMIME(t *testing.T) {
	cases := []struct {
		mime string
		want SourceType
		ok   bool
	}{
		{"image/jpeg", SourceJPG, true},
		{"image/png", SourcePNG, true},
		{"image/gif", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := SourceTypeFromMIME(c.mime)
		if ok != c.ok || got != c.want {
			t.Errorf("SourceTypeFromMIME(%q) = (%q, %v), want (%q, %v)", c.mime, got, ok, c.want, c.ok)
		}
	}
}

func TestSourceType_MIMEAndExt(t *testing.T) {
	if SourceJPG.MIME() != "image/jpeg" {
		t.Errorf("SourceJPG.MIME() = %q", SourceJPG.MIME())
	}
	if SourcePNG.MIME() != "image/png" {
		t.Errorf("SourcePNG.MIME() = %q", SourcePNG.MIME())
	}
	if SourceJPG.Ext() != "jpg" {
		t.Errorf("SourceJPG.Ext() = %q", SourceJPG.Ext())
	}
	if SourcePNG.Ext() != "png" {
		t.Errorf("SourcePNG.Ext() = %q", SourcePNG.Ext())
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusStored:       false,
		StatusWaiting:      false,
		StatusTransforming: false,
		StatusTransformed:  true,
		StatusFailed:       true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%q.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestMetadata_Clone(t *testing.T) {
	m := sampleMeta()
	c := m.Clone()

	*c.TargetQuality = 1
	if *m.TargetQuality == 1 {
		t.Fatal("Clone: mutating clone's TargetQuality affected original")
	}

	c.Extra = map[string]string{"x": "y"}
	if m.Extra != nil {
		t.Fatal("Clone: mutating clone's Extra affected original")
	}
}
