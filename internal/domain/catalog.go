package domain

// AnonymizeTarget is a PII-bearing collection whose records are kept but scrubbed.
type AnonymizeTarget struct {
	Name       string
	Collection string
	OwnerField string
	// Scrub maps PII field -> placeholder value.
	Scrub map[string]interface{}
	// Replies, when set, names a per-document subcollection scrubbed best-effort.
	Replies *AnonymizeTarget
}

// DeleteTarget is a user-owned collection whose records are removed outright.
type DeleteTarget struct {
	Name       string
	Collection string
	// OwnerFields are queried independently; results are all deleted.
	OwnerFields []string
}

// Catalog is the collection layout touched by an erasure run.
type Catalog struct {
	UsersCollection      string
	PhotoField           string
	RiskScoresCollection string
	RequestsCollection   string
	Anonymize            []AnonymizeTarget
	Delete               []DeleteTarget
	UserSubcollections   []string
}

// DefaultCatalog is the production collection layout.
func DefaultCatalog() Catalog {
	nameAndPhone := func(nameField, phoneField string) map[string]interface{} {
		return map[string]interface{}{nameField: DeletedUserName, phoneField: Blank}
	}
	receipts := nameAndPhone("userName", "userPhone")
	receipts["userEmail"] = Blank
	postFields := map[string]interface{}{"userName": DeletedUserName, "userPhotoURL": Blank}
	return Catalog{
		UsersCollection:      "users",
		PhotoField:           "profilePhotoURL",
		RiskScoresCollection: "riskScores",
		RequestsCollection:   "deletionRequests",
		Anonymize: []AnonymizeTarget{
			{Name: "receipts", Collection: "receipts", OwnerField: "userId", Scrub: receipts},
			{Name: "suspicious_flags", Collection: "suspiciousFlags", OwnerField: "userId", Scrub: nameAndPhone("userName", "userPhone")},
			{Name: "gifted_rewards", Collection: "giftedRewards", OwnerField: "senderId", Scrub: nameAndPhone("senderName", "senderPhone")},
			{Name: "gifted_reward_claims", Collection: "giftedRewardClaims", OwnerField: "claimerId", Scrub: nameAndPhone("claimerName", "claimerPhone")},
			{
				Name: "posts", Collection: "posts", OwnerField: "userId", Scrub: postFields,
				Replies: &AnonymizeTarget{Name: "post_replies", Collection: "replies", OwnerField: "userId", Scrub: postFields},
			},
		},
		Delete: []DeleteTarget{
			{Name: "points_transactions", Collection: "pointsTransactions", OwnerFields: []string{"userId"}},
			{Name: "redeemed_rewards", Collection: "redeemedRewards", OwnerFields: []string{"userId"}},
			{Name: "referrals", Collection: "referrals", OwnerFields: []string{"referrerUserId", "referredUserId"}},
			{Name: "notifications", Collection: "notifications", OwnerFields: []string{"userId"}},
			{Name: "scan_attempts", Collection: "scanAttempts", OwnerFields: []string{"userId"}},
		},
		UserSubcollections: []string{"favorites", "pushTokens", "savedAddresses"},
	}
}

// UserRef is the root user document.
func (c Catalog) UserRef(id UserID) DocumentRef { return Ref(c.UsersCollection, id.String()) }

// RiskScoreRef is the per-user risk score document.
func (c Catalog) RiskScoreRef(id UserID) DocumentRef {
	return Ref(c.RiskScoresCollection, id.String())
}
