package maintenance

import (
	"github.com/obentoo/upkeep/internal/common/output"
	"github.com/obentoo/upkeep/internal/report"
	"github.com/obentoo/upkeep/internal/workflows"
)

// SummaryRows flattens a report into display rows, actions first
func SummaryRows(rep *report.Report) []output.Row {
	var rows []output.Row
	for _, u := range rep.ActionUpdates() {
		rows = append(rows, output.Row{Kind: output.KindAction, Subject: u.File, Identifier: u.Action, Previous: workflows.ParseRef(u.Previous, "").Display(), Updated: u.Updated})
	}
	for _, u := range rep.DownloadUpdates() {
		rows = append(rows, output.Row{Kind: output.KindDownload, Subject: u.File, Identifier: u.Identifier, Previous: u.Previous, Updated: u.Updated})
	}
	for _, u := range rep.LockfileUpdates() {
		rows = append(rows, output.Row{Kind: output.KindLockfile, Subject: u.Feature, Previous: featureVersion(u.Previous), Updated: featureVersion(u.Updated)})
	}
	return rows
}

func featureVersion(f *report.FeatureEntry) string {
	if f == nil {
		return ""
	}
	if f.Version != nil {
		return *f.Version
	}
	if f.Resolved != nil {
		return *f.Resolved
	}
	return "unversioned"
}
