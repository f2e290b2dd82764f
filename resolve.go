package diffset

// Resolution is the result of cross-referencing a diff with its parent diff.
type Resolution struct {
	Files  []FileDiff // Main records with SourcePath, SourceRevision and Parent set
	Parent []FileDiff // Parent records referenced by the main diff
	Unused []FileDiff // Parent records no main record depends on
}

// Resolve associates each record of main with the parent record that
// produced its original content and determines what to fetch for it.
//
// A parent record matches when its modified path equals the main record's
// original path. The fetch target then becomes the parent's original path
// and revision, so renamed files are fetched under their pre-rename name and
// any parent hunks apply to that pre-rename content. Parent records that no
// main record references are returned in Unused and never fetched.
//
// Resolve copies the records it returns; main and parent are not modified.
func Resolve(main *DiffSet, parent *DiffSet) *Resolution {
	byPath := make(map[string]int)
	if parent != nil {
		for i, pf := range parent.Files {
			if pf.ModifiedPath == "" {
				continue // Deleted in the parent diff; nothing can build on it
			}
			byPath[pf.ModifiedPath] = i
		}
	}

	res := &Resolution{
		Files: make([]FileDiff, 0, len(main.Files)),
	}
	used := make(map[int]bool)

	for _, f := range main.Files {
		f.Parent = nil
		f.SourcePath = f.OriginalPath
		f.SourceRevision = f.OriginalRevision

		if idx, ok := byPath[f.OriginalPath]; ok && f.OriginalPath != "" {
			pf := parent.Files[idx]
			pf.Parent = nil
			pf.SourcePath = pf.OriginalPath
			pf.SourceRevision = pf.OriginalRevision
			f.Parent = &pf
			f.SourcePath = pf.OriginalPath
			f.SourceRevision = pf.OriginalRevision
			if !used[idx] {
				used[idx] = true
				res.Parent = append(res.Parent, pf)
			}
		}

		res.Files = append(res.Files, f)
	}

	if parent != nil {
		for i, pf := range parent.Files {
			if !used[i] {
				res.Unused = append(res.Unused, pf)
			}
		}
	}

	return res
}
