package htmldoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapdna/internal/interpreter"
)

const sample = `<html><head>
<script>window.mapboxAccessToken='pk.a\'b\x3c'</script>
<script>window._mbData = window._mbData || {logging: true, popups: {}};</script>
</head><body>
<section style="height: 420px"><div id="m1" class="mb-map other" data-dna="[]"></div></section>
<div id="m2" class="mb-map"></div>
<script>window._mbData = window._mbData || {logging: true, popups: {}};
window._mbData.popups['m1'] = {"a":{"content":"<b>A</b>","maxWidth":"300px"}};
</script>
</body></html>`

func TestPage(t *testing.T) {
	doc, err := ParseString(sample)
	require.NoError(t, err)

	page := doc.Page()
	assert.True(t, page.Logging)
	assert.Equal(t, "pk.a'b<", page.AccessToken)
	require.Contains(t, page.Popups, "m1")
	assert.Equal(t, interpreter.PopupData{"content": "<b>A</b>", "maxWidth": "300px"}, page.Popups["m1"]["a"])
	assert.Equal(t, "<b>A</b>", page.Popups["m1"]["a"].Content())
}

func TestQueries(t *testing.T) {
	doc, err := ParseString(sample)
	require.NoError(t, err)

	el, ok := doc.ElementByID("m1")
	require.True(t, ok)
	assert.Equal(t, "m1", el.ID())
	dna, ok := el.Attr("data-dna")
	assert.True(t, ok)
	assert.Equal(t, "[]", dna)
	assert.Equal(t, 420, el.ClientHeight())
	assert.True(t, el.Attached())

	_, ok = doc.ElementByID("nope")
	assert.False(t, ok)
	assert.Equal(t, 1, doc.CountID("m2"))
	assert.Equal(t, 0, doc.CountID("nope"))

	byClass := doc.ElementsByClass("mb-map")
	require.Len(t, byClass, 2)
	assert.Equal(t, "m2", byClass[1].ID())
	assert.Equal(t, 0, byClass[1].ClientHeight())
}

func TestMutations(t *testing.T) {
	doc, err := ParseString(`<div id="host"></div>`)
	require.NoError(t, err)

	el := doc.CreateElement()
	assert.False(t, el.Attached())
	el.SetID("made")
	el.AddClass("mb-map")
	el.AddClass("mb-map")
	el.SetStyle("display", "block")
	el.SetStyle("height", "10px")
	el.SetStyle("display", "none")

	host, ok := doc.ElementByID("host")
	require.True(t, ok)
	host.AppendChild(el)

	assert.True(t, el.Attached())
	assert.Equal(t, 10, el.ClientHeight())
	assert.Contains(t, doc.String(), `<div id="host"><div id="made" class="mb-map" style="display: none; height: 10px;"></div></div>`)

	el.(*Element).Remove()
	assert.False(t, el.Attached())
	assert.Equal(t, 0, doc.CountID("made"))
}
