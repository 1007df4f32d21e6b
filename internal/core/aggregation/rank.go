package aggregation

// ControversyRank scores how contested a vote split is: total engagement
// weighted by the balance between the two sides. It is symmetric in its
// arguments, peaks at an even split and is zero unless both sides have votes.
//
// The SQL function controversy_rank in the migrations computes the same value.
func ControversyRank(upvotes, downvotes int64) float64 {
	if upvotes <= 0 || downvotes <= 0 {
		return 0
	}
	lo, hi := upvotes, downvotes
	if lo > hi {
		lo, hi = hi, lo
	}
	return float64(upvotes+downvotes) * float64(lo) / float64(hi)
}
