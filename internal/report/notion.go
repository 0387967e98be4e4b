package report

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/litpipe/pkg/notion"
)

// Notion caps rich text at 2000 characters and 100 blocks per append.
const (
	maxBlockChars    = 1900
	maxBlocksPerCall = 100
)

// PublishNotion creates a page under parentPageID holding the report as
// paragraph blocks and returns the new page ID.
func PublishNotion(ctx context.Context, client notion.Client, parentPageID, title, content string) (string, error) {
	page, err := client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentPageID),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Title: []notionapi.RichText{
					{Text: &notionapi.Text{Content: title}},
				},
			},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "report: create notion page")
	}

	blocks := toBlocks(content)
	for start := 0; start < len(blocks); start += maxBlocksPerCall {
		end := min(start+maxBlocksPerCall, len(blocks))
		_, err := client.AppendBlocks(ctx, string(page.ID), &notionapi.AppendBlockChildrenRequest{
			Children: blocks[start:end],
		})
		if err != nil {
			return string(page.ID), eris.Wrap(err, "report: append notion blocks")
		}
	}

	zap.L().Info("report: published to notion",
		zap.String("page_id", string(page.ID)),
		zap.Int("blocks", len(blocks)),
	)
	return string(page.ID), nil
}

// toBlocks splits the report into paragraph blocks, one per line, chunking
// any line over the Notion rich-text limit.
func toBlocks(content string) []notionapi.Block {
	var blocks []notionapi.Block
	for _, line := range strings.Split(content, "\n") {
		for _, chunk := range chunkString(line, maxBlockChars) {
			blocks = append(blocks, paragraph(chunk))
		}
	}
	return blocks
}

func paragraph(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{
			RichText: []notionapi.RichText{
				{Text: &notionapi.Text{Content: text}},
			},
		},
	}
}

func chunkString(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var chunks []string
	runes := []rune(s)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
