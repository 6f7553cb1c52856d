package receipt

// NumberPrefix is the numbering scope prefix for receipts. Receipts are
// primary accounting documents, so numbers are issued strictly inside the
// creation transaction and stay gap-free.
const NumberPrefix = "REC"
