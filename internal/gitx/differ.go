package gitx

// Differ compares one file's blob content between a fixed revision pair,
// captured once per run.
type Differ struct {
	client *Client
	pair   *CommitPair
}

// NewDiffer captures the revision pair for this run. Callers map ErrNoHistory
// to the conservative "assume changed" default.
func (c *Client) NewDiffer() (*Differ, error) {
	pair, err := c.LastTwoCommits()
	if err != nil {
		return nil, err
	}
	return &Differ{client: c, pair: pair}, nil
}

// Changed reports whether a repository-relative path differs between the two
// revisions. Any lookup error is reported alongside changed=true: a blob that
// cannot be compared must be rebuilt, never skipped.
func (d *Differ) Changed(relPath string) (bool, error) {
	headHash, err := d.client.FileHashAt(d.pair.Head, relPath)
	if err != nil {
		return true, err
	}
	parentHash, err := d.client.FileHashAt(d.pair.Parent, relPath)
	if err != nil {
		return true, err
	}
	return headHash != parentHash, nil
}
