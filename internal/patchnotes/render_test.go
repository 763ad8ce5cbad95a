package patchnotes

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/lorekeeper/internal/models"
)

func TestRenderDiscord_Order(t *testing.T) {
	cats := models.Categories{
		CategoryBugFixes: {"Fixed Torches"},
		"Zeta":           {"x"},
		CategoryContent:  {"New Dungeon"},
		"Alpha":          {"y"},
		CategoryClass:    {"Warrior: B", "Mage: A"},
		CategoryGuilds:   {},
	}
	want := "**Content**\n- New Dungeon\n\n" +
		"**Class**\n- Mage: A\n- Warrior: B\n\n" +
		"**Bug Fixes**\n- Fixed Torches\n\n" +
		"**Alpha**\n- y\n\n" +
		"**Zeta**\n- x\n"
	if got := RenderDiscord(cats); got != want {
		t.Errorf("RenderDiscord mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}
	if cats[CategoryClass][0] != "Warrior: B" {
		t.Error("RenderDiscord reordered the input")
	}
}

func TestRenderHTML_Escapes(t *testing.T) {
	got := RenderHTML(models.Categories{CategoryContent: {"It's <new>"}})
	want := `<div class="patch-header2">Content</div>` + "\n" +
		`<div class="spacer-10"></div>` + "\n" +
		`<div class="patch-note">- It&#39;s &lt;new&gt;</div>` + "\n" +
		`<div class="spacer-30"></div>`
	if got != want {
		t.Errorf("RenderHTML = %q, want %q", got, want)
	}
}

func TestParseDiscord_RoundTrip(t *testing.T) {
	cats := models.Categories{
		CategoryContent:  {"New Dungeon", "New Mount"},
		CategoryClass:    {"Mage: A", "Warrior: B"},
		CategoryBugFixes: {"Fixed Torches"},
	}
	if diff := cmp.Diff(cats, ParseDiscord(RenderDiscord(cats))); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestClean(t *testing.T) {
	got := Clean(models.Categories{
		" Content ": {"  a  ", "", " "},
		"":          {"lost"},
		"Guilds":    {" "},
	})
	want := models.Categories{"Content": {"a"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Clean mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten(t *testing.T) {
	got := Flatten(models.Categories{
		CategoryBugFixes: {"c"},
		CategoryContent:  {"a", "b"},
	})
	want := []NoteRef{
		{CategoryContent, "a"},
		{CategoryContent, "b"},
		{CategoryBugFixes, "c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
}
