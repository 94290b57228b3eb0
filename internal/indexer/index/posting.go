package index

// Posting records a term's weight in one document. Before the merge Score is
// the raw weighted term count; after the merge it is count × idf.
type Posting struct {
	DocID int32
	Score float64
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}
