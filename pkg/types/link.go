package types

// Link is one stored row of the link graph. Endpoints are held in canonical
// orientation: Kind1 <= Kind2, and ID1 <= ID2 when the kinds are equal.
type Link struct {
	Kind1   int64
	ID1     int64
	Kind2   int64
	ID2     int64
	Subtype int
	Rank    int
	Note    string
}

// LinkAttrs carries the optional attributes of a link. An empty Note is
// stored as NULL.
type LinkAttrs struct {
	Subtype int
	Rank    int
	Note    string
}

// LinkedRecord is one hydrated result of LinkGraph.Linked. Callers switch on
// Kind to interpret Record.
type LinkedRecord struct {
	Kind   string
	ID     int64
	Rank   int
	Note   string
	Record *Record
}
