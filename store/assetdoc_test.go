package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolDoc = `<CuttingTool assetId="T1" toolId="5"><Description>drill</Description>` +
	`<CuttingToolLifeCycle><ToolLife type="MINUTES">10</ToolLife></CuttingToolLifeCycle></CuttingTool>`

func TestUpdateDocument_Fields(t *testing.T) {
	doc, err := UpdateDocument(toolDoc, []string{"ToolLife", "3", "toolId", "9"})
	require.NoError(t, err)
	assert.Contains(t, doc, `<ToolLife type="MINUTES">3</ToolLife>`)
	assert.Contains(t, doc, `toolId="9"`)

	_, err = UpdateDocument(toolDoc, []string{"ToolLife"})
	assert.Error(t, err)
	_, err = UpdateDocument(toolDoc, []string{"Nope", "1"})
	assert.Error(t, err)
}

func TestUpdateDocument_Fragment(t *testing.T) {
	doc, err := UpdateDocument(toolDoc, []string{`<Description>reamer</Description>`})
	require.NoError(t, err)
	assert.Contains(t, doc, `<Description>reamer</Description>`)
	assert.NotContains(t, doc, "drill")

	doc, err = UpdateDocument(toolDoc, []string{`<Location type="POT">4</Location>`})
	require.NoError(t, err)
	assert.Contains(t, doc, `<Location type="POT">4</Location></CuttingTool>`)

	_, err = UpdateDocument("plain text", []string{`<Location>4</Location>`})
	assert.Error(t, err)
}
