package section_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/section"
)

func TestKindString(t *testing.T) {
	cases := []struct {
		k    section.Kind
		want string
	}{
		{section.KindBlock, "BLOCK"},
		{section.KindMetadataV2Schema, "METADATA_V2_SCHEMA"},
		{section.KindMetadataV2, "METADATA_V2"},
		{section.KindSectionIndex, "SECTION_INDEX"},
		{section.KindHistory, "HISTORY"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.k, got, c.want)
		}
	}

	if !section.KindBlock.Known() {
		t.Errorf("KindBlock should be known")
	}
	if section.Kind(99).Known() {
		t.Errorf("Kind(99) should not be known")
	}
}
