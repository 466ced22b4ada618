package migrate

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/steveyegge/jihub/internal/github"
	"github.com/steveyegge/jihub/internal/jira"
	"github.com/steveyegge/jihub/internal/logging"
)

// Asset is a Jira attachment as it will be referenced from GitHub.
type Asset struct {
	Name        string // {key}-{filename}
	Filename    string
	SourceURL   string
	HTMLURL     string
	DownloadURL string
	Hash        string // SHA-512 hex, set when the bytes were transferred
}

// AssetName is the deterministic upload name of an attachment.
func AssetName(key, filename string) string {
	return key + "-" + filename
}

// placeholderPattern matches Jira inline attachments: !path! or !path|attrs!.
var placeholderPattern = regexp.MustCompile(`!([^\s!|][^!\n|]*(?:\|[^!\n]*)?)!`)

// ResolveAttachments turns an issue's declared attachments into assets.
// Assets already present in the upload repository are reused. Otherwise,
// in export mode, the bytes are downloaded and uploaded; a failed download
// skips the attachment and a failed upload aborts the run. Without export the
// Jira URL is referenced directly.
func (o *Orchestrator) ResolveAttachments(ctx context.Context, issue *jira.Issue) ([]Asset, error) {
	var assets []Asset
	for _, att := range issue.Fields.Attachments {
		name := AssetName(issue.Key, att.Filename)
		asset := Asset{Name: name, Filename: att.Filename, SourceURL: att.Content}

		if existing, ok := o.assets[strings.ToLower(name)]; ok {
			asset.HTMLURL = existing.HTMLURL
			asset.DownloadURL = existing.DownloadURL
			o.report.Stats.AssetsReused++
			assets = append(assets, asset)
			continue
		}

		if !o.Options.Export || o.Options.DryRun {
			asset.HTMLURL = att.Content
			asset.DownloadURL = att.Content
			assets = append(assets, asset)
			continue
		}

		dl, err := o.Source.DownloadAttachment(ctx, att)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.Logger.Errorw("failed to download attachment, skipping",
				"key", issue.Key, "attachment", att.Filename, "error", err)
			o.report.Stats.AssetsSkipped++
			continue
		}
		content, err := o.UploadAsset(ctx, name, dl.Data)
		if err != nil {
			return nil, err
		}
		asset.HTMLURL = content.HTMLURL
		asset.DownloadURL = content.DownloadURL
		asset.Hash = dl.Hash
		assets = append(assets, asset)
	}
	return assets, nil
}

// UploadAsset stores data under the import path of the upload repository.
// The committer is looked up on first use. Both failures are critical.
func (o *Orchestrator) UploadAsset(ctx context.Context, name string, data []byte) (*github.Content, error) {
	if o.committer == nil {
		committer, err := o.Uploads.Committer(ctx)
		if err != nil {
			return nil, critical("resolve upload committer: %w", err)
		}
		o.committer = committer
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	target := path.Join(o.Options.ImportPath, name)
	content, err := o.Uploads.PutContent(ctx, target, o.Options.Branch, data, o.committer)
	if err != nil {
		return nil, critical("upload asset %s: %w", name, err)
	}
	if content.Name == "" {
		content.Name = name
	}
	o.assets[strings.ToLower(name)] = *content
	o.report.Stats.AssetsUploaded++
	o.Logger.Infow("uploaded attachment", "asset", name, "bytes", len(data))
	return content, nil
}

// SubstitutePlaceholders replaces inline attachment placeholders with
// markdown links. Placeholders are paired left to right with the first
// remaining asset whose name contains the placeholder path; paired assets
// leave the pool, which is returned. When embed is set every link is
// rendered as an image.
func SubstitutePlaceholders(text string, assets []Asset, embed bool, log logging.Logger, key string) (string, []Asset) {
	pool := append([]Asset(nil), assets...)
	prefix := ""
	if embed {
		prefix = "!"
	}

	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		inner := match[1 : len(match)-1]
		p, _, _ := strings.Cut(inner, "|")
		for i, a := range pool {
			if strings.Contains(a.Name, p) {
				pool = append(pool[:i], pool[i+1:]...)
				return prefix + markdownLink(a.Filename, a.DownloadURL)
			}
		}
		log.Errorw("no attachment matches inline placeholder", "key", key, "placeholder", p)
		return prefix + markdownLink(path.Base(p), p)
	})
	return out, pool
}

func markdownLink(text, target string) string {
	return "[" + text + "](" + target + ")"
}

// attachmentList renders the assets no placeholder referenced.
func attachmentList(assets []Asset, embed bool) string {
	prefix := ""
	if embed {
		prefix = "!"
	}
	links := make([]string, 0, len(assets))
	for _, a := range assets {
		links = append(links, prefix+markdownLink(a.Filename, a.DownloadURL))
	}
	return strings.Join(links, ", ")
}
