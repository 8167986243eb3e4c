package http

import (
	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/discussion"
)

type postInput struct {
	Title   string `json:"title" validate:"notblank,max=200"`
	Content string `json:"content" validate:"notblank,max=5000"`
}

func ListDiscussionsHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ds, err := b.List(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "courseID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		okList(w, ds)
	}
}

func CreateDiscussionHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req postInput
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		d, err := b.Create(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "courseID"), req.Title, req.Content)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, d)
	}
}

func GetDiscussionHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		d, err := b.Get(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, d)
	}
}

func ReplyHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Content string `json:"content" validate:"notblank,max=5000"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		d, err := b.Reply(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.Content)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, d)
	}
}

func ResolveHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		d, err := b.Resolve(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, d)
	}
}

func UpvoteHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		n, err := b.Upvote(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, map[string]int{"upvotes": n})
	}
}

func ListAnnouncementsHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		as, err := b.Announcements(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "courseID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		okList(w, as)
	}
}

func CreateAnnouncementHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req postInput
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		a, err := b.Announce(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "courseID"), req.Title, req.Content)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, a)
	}
}

func UpdateAnnouncementHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req postInput
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		a, err := b.UpdateAnnouncement(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), req.Title, req.Content)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, a)
	}
}

func DeleteAnnouncementHandler(b *discussion.Boards) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := b.DeleteAnnouncement(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
			fail(w, r, err)
			return
		}
		okMessage(w, "announcement deleted")
	}
}
