// Package discussion holds course discussion boards and announcements.
package discussion

import "time"

type Reply struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussion_id"`
	AuthorID     string    `json:"author_id"`
	Content      string    `json:"content"`
	IsInstructor bool      `json:"is_instructor"`
	CreatedAt    time.Time `json:"created_at"`
}

type Discussion struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	AuthorID   string    `json:"author_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsResolved bool      `json:"is_resolved"`
	Upvotes    []string  `json:"upvotes"`
	Replies    []Reply   `json:"replies,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Announcement struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// toggle adds userID to the set or removes it when present.
func toggle(set []string, userID string) []string {
	out := make([]string, 0, len(set)+1)
	found := false
	for _, id := range set {
		if id == userID {
			found = true
			continue
		}
		out = append(out, id)
	}
	if !found {
		out = append(out, userID)
	}
	return out
}
