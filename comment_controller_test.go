package clipfeed

import (
	"context"
	"errors"
	"testing"

	"github.com/haileyok/clipfeed/models"
)

func newTestCommentController(gw *fakeGateway, sess *fakeSession, confirm func(string) bool) (*CommentController, *InteractionCache) {
	cache := newTestCache(gw)
	ctrl := NewCommentController(&CommentControllerArgs{
		Gateway: gw,
		Session: sess,
		Cache:   cache,
		Confirm: confirm,
	})
	return ctrl, cache
}

func TestAddCommentEndToEnd(t *testing.T) {
	gw := newFakeGateway()
	sess := &fakeSession{user: &models.UserSession{UserID: "u1"}}
	ctrl, cache := newTestCommentController(gw, sess, nil)

	if err := ctrl.AddComment(context.Background(), "p1", "hi"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	comments := cache.CommentsFor("p1")
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	if comments[0].Text != "hi" {
		t.Errorf("expected text %q, got %q", "hi", comments[0].Text)
	}
	if comments[0].UserID != "u1" || comments[0].PostID != "p1" {
		t.Errorf("unexpected comment attribution: %+v", comments[0])
	}
}

func TestAddCommentRequiresAuth(t *testing.T) {
	gw := newFakeGateway()
	ctrl, _ := newTestCommentController(gw, &fakeSession{}, nil)

	err := ctrl.AddComment(context.Background(), "p1", "hi")
	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired, got %v", err)
	}
	if gw.totalCalls() != 0 {
		t.Errorf("expected no gateway calls, got %d", gw.totalCalls())
	}
}

func TestAddCommentRejectsEmptyText(t *testing.T) {
	gw := newFakeGateway()
	sess := &fakeSession{user: &models.UserSession{UserID: "u1"}}
	ctrl, _ := newTestCommentController(gw, sess, nil)

	err := ctrl.AddComment(context.Background(), "p1", "   ")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if gw.totalCalls() != 0 {
		t.Errorf("expected no gateway calls, got %d", gw.totalCalls())
	}
}

func TestDeleteCommentDeclinedConfirmation(t *testing.T) {
	gw := newFakeGateway()
	rec := gw.seed(models.KindComment, commentPayload("u1", "p1", "keep me"))

	sess := &fakeSession{user: &models.UserSession{UserID: "u1"}}
	ctrl, _ := newTestCommentController(gw, sess, func(string) bool { return false })

	if err := ctrl.DeleteComment(context.Background(), rec.ID, "p1"); err != nil {
		t.Fatalf("DeleteComment failed: %v", err)
	}

	if gw.deleteCalls != 0 {
		t.Errorf("expected no delete calls after declined prompt, got %d", gw.deleteCalls)
	}
}

func TestDeleteCommentRemovesOnlyTargetPost(t *testing.T) {
	gw := newFakeGateway()
	target := gw.seed(models.KindComment, commentPayload("u1", "p1", "delete me"))
	gw.seed(models.KindComment, commentPayload("u1", "p1", "stay"))
	gw.seed(models.KindComment, commentPayload("u1", "p2", "other post"))

	sess := &fakeSession{user: &models.UserSession{UserID: "u1"}}
	ctrl, cache := newTestCommentController(gw, sess, func(string) bool { return true })

	ctx := context.Background()
	if err := cache.RefreshComments(ctx, "p1"); err != nil {
		t.Fatalf("RefreshComments(p1) failed: %v", err)
	}
	if err := cache.RefreshComments(ctx, "p2"); err != nil {
		t.Fatalf("RefreshComments(p2) failed: %v", err)
	}

	if err := ctrl.DeleteComment(ctx, target.ID, "p1"); err != nil {
		t.Fatalf("DeleteComment failed: %v", err)
	}

	for _, cm := range cache.CommentsFor("p1") {
		if cm.ID == target.ID {
			t.Errorf("deleted comment still present: %+v", cm)
		}
	}
	if len(cache.CommentsFor("p1")) != 1 {
		t.Errorf("expected 1 remaining comment on p1, got %d", len(cache.CommentsFor("p1")))
	}
	if len(cache.CommentsFor("p2")) != 1 {
		t.Errorf("expected p2 unchanged, got %d comments", len(cache.CommentsFor("p2")))
	}
}

func TestCanDeleteComment(t *testing.T) {
	comment := models.Comment{ID: "c1", UserID: "u1"}

	if !CanDeleteComment(&models.UserSession{UserID: "u1"}, comment) {
		t.Error("author should be able to delete their comment")
	}
	if CanDeleteComment(&models.UserSession{UserID: "u2"}, comment) {
		t.Error("non-author should not see the delete control")
	}
	if CanDeleteComment(nil, comment) {
		t.Error("logged-out viewer should not see the delete control")
	}
}
