package services

import (
	"fmt"
	"strings"

	"slack-code-review/models"
)

func msgAdded(slug string) string {
	return fmt.Sprintf("*%s* is now in the code review queue. Let me know if anyone starts reviewing this.", slug)
}

func msgClaimed(user models.User, slug string) string {
	return fmt.Sprintf("Thanks, %s! I removed *%s* from the code review queue.", user.Name, slug)
}

func msgClaimAll() string {
	return ":tornado2:"
}

func msgNothingToClaim() string {
	return "Sorry, there are no new code reviews to claim in this room."
}

func msgNoNewMatch(fragment string) string {
	return fmt.Sprintf("Sorry, I couldn't find any new PRs in this room matching `%s`.", fragment)
}

func msgNoMatch(fragment string) string {
	return fmt.Sprintf("Sorry, I couldn't find any PRs in this room matching `%s`.", fragment)
}

func msgAlreadyTaken(req models.ReviewRequest) string {
	text := fmt.Sprintf("It looks like *%s* (@%s) has already been %s", req.Slug, req.Submitter.Name, req.Status)
	if req.Reviewer != "" {
		text += fmt.Sprintf(" by @%s", req.Reviewer)
	}
	return text + "."
}

// "`a`, or `b`?" / "`a`, `b`, or `c`?"
func msgAmbiguous(candidates []models.ReviewRequest) string {
	quoted := make([]string, len(candidates))
	for i, c := range candidates {
		quoted[i] = "`" + c.Slug + "`"
	}
	last := len(quoted) - 1
	return fmt.Sprintf("You're gonna have to be more specific: %s, or %s?", strings.Join(quoted[:last], ", "), quoted[last])
}

func msgBeMoreSpecific() string {
	return "Sorry, can you be more specific?"
}

func msgUnclaimed(slug string) string {
	return fmt.Sprintf("You got it, I've unclaimed *%s* in the queue.", slug)
}

func msgRedo(slug string) string {
	return fmt.Sprintf("You got it, %s is ready for a new review.", slug)
}

func msgIgnored(slug string) string {
	return fmt.Sprintf("Sorry for eavesdropping. I removed *%s* from the queue.", slug)
}

func msgNothingToIgnore() string {
	return "Sorry, there aren't any code reviews in this room to ignore."
}

func msgListHeader(status string) string {
	if status == string(models.StatusNew) {
		return "There are pending code reviews. Any takers?"
	}
	return fmt.Sprintf("Here's a list of %s code reviews for you.", status)
}

func msgListEmpty(status string) string {
	if status == string(models.StatusNew) {
		return "There are no pending code reviews for this room."
	}
	return fmt.Sprintf("There are no %s code reviews for this room.", status)
}

func msgListLine(req models.ReviewRequest, age string) string {
	return fmt.Sprintf("*<%s|%s>* (%s %s)", req.URL, req.Slug, req.Status.Verb(), age)
}

func msgInvalidStatus(status string) string {
	return fmt.Sprintf("Sorry, `%s` isn't a code review status. Try new, claimed, approved, closed, merged, or all.", status)
}

func msgApprovedRoom(req models.ReviewRequest, approver string) string {
	return fmt.Sprintf("*%s* has been approved by %s. :white_check_mark:", req.Slug, approver)
}

func msgApprovedDM(submitter models.User, approver, url, body string) string {
	return fmt.Sprintf("hey @%s! %s approved %s:\n%s", submitter.Name, approver, url, body)
}

func msgCommentedDM(submitter models.User, commenter, url, body string) string {
	return fmt.Sprintf("hey @%s, %s commented on %s:\n%s", submitter.Name, commenter, url, body)
}

func msgMergedNew(slug string) string {
	return fmt.Sprintf("*%s* has been merged but still needs to be reviewed, just fyi.", slug)
}

func msgMergedClaimed(req models.ReviewRequest) string {
	return fmt.Sprintf("Hey @%s, *%s* has been merged but you should keep reviewing.", req.Reviewer, req.Slug)
}

func msgClosedNew(req models.ReviewRequest) string {
	return fmt.Sprintf("Hey @%s, looks like *%s* was closed on GitHub. Say `ignore %s` to remove it from the queue.", req.Submitter.Name, req.Slug, req.Slug)
}

func msgClosedClaimed(req models.ReviewRequest) string {
	return fmt.Sprintf("Hey @%s, *%s* was closed on GitHub. Maybe ask @%s if it still needs to be reviewed.", req.Reviewer, req.Slug, req.Submitter.Name)
}
