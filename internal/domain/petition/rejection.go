package petition

// RejectionReason describes a moderator rejection code.
type RejectionReason struct {
	Code   string
	Label  string
	Hidden bool
}

const RejectionInsufficient = "insufficient"

var insufficientSignatures = RejectionReason{
	Code:  RejectionInsufficient,
	Label: "It did not collect enough signatures to be referred",
}

var rejectionReasons = map[string]RejectionReason{
	"duplicate":  {Code: "duplicate", Label: "Duplicate petition"},
	"irrelevant": {Code: "irrelevant", Label: "Not the responsibility of the legislature"},
	"no-action":  {Code: "no-action", Label: "No action requested"},
	"honours":    {Code: "honours", Label: "About honours or appointments"},
	"fake-name":  {Code: "fake-name", Label: "Creator name is not genuine"},
	"foi":        {Code: "foi", Label: "Freedom of information request"},
	"libellous":  {Code: "libellous", Label: "Potentially libellous or confidential", Hidden: true},
	"offensive":  {Code: "offensive", Label: "Offensive, joke or nonsense content", Hidden: true},
	RejectionInsufficient: insufficientSignatures,
}

// LookupRejection returns the reason registered for code.
func LookupRejection(code string) (RejectionReason, bool) {
	r, ok := rejectionReasons[code]
	return r, ok
}
