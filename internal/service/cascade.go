package service

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/repository"
)

// The cascade helpers run inside the caller's transaction and delete children
// before parents. A row is deleted before the relations targeting it: the
// delete waits for any toggle holding the row's share lock, and the relation
// delete that follows then sees what that toggle wrote.

func deleteReplies(ctx context.Context, r repository.Repositories, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.Replies.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	return r.Relations.DeleteTargeting(ctx, models.TableReplies, ids)
}

func deleteComments(ctx context.Context, r repository.Repositories, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	replyIDs, err := r.Replies.IDsByComments(ctx, ids)
	if err != nil {
		return err
	}
	if err := deleteReplies(ctx, r, replyIDs); err != nil {
		return err
	}
	if err := r.Comments.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	return r.Relations.DeleteTargeting(ctx, models.TableComments, ids)
}

func deletePosts(ctx context.Context, r repository.Repositories, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	commentIDs, err := r.Comments.IDsByPosts(ctx, ids)
	if err != nil {
		return err
	}
	if err := deleteComments(ctx, r, commentIDs); err != nil {
		return err
	}
	if err := r.Posts.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	return r.Relations.DeleteTargeting(ctx, models.TablePosts, ids)
}

// deleteUser removes the user and everything hanging off them. It returns
// the blob keys that were referenced by deleted rows; the caller releases
// them once the transaction has committed.
func deleteUser(ctx context.Context, r repository.Repositories, userID uint) ([]string, error) {
	user, err := r.Users.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.Relations.DeleteByActor(ctx, userID); err != nil {
		return nil, err
	}
	if err := r.Relations.DeleteTargeting(ctx, models.TableUsers, []uint{userID}); err != nil {
		return nil, err
	}

	posts, err := r.Posts.ListOwnedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	postIDs := make([]uint, 0, len(posts))
	blobKeys := make([]string, 0, len(posts)+1)
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		if p.HasUpload() {
			blobKeys = append(blobKeys, p.ImageKey)
		}
	}
	if err := deletePosts(ctx, r, postIDs); err != nil {
		return nil, err
	}

	// What is left is content the user wrote under other people's posts.
	commentIDs, err := r.Comments.IDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := deleteComments(ctx, r, commentIDs); err != nil {
		return nil, err
	}
	replyIDs, err := r.Replies.IDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := deleteReplies(ctx, r, replyIDs); err != nil {
		return nil, err
	}

	if err := r.Users.Delete(ctx, userID); err != nil {
		return nil, err
	}
	if user.HasUpload() {
		blobKeys = append(blobKeys, user.ImageKey)
	}
	return blobKeys, nil
}
