package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"

	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/pkg/storage"
	"polygram/pkg/store"
)

const (
	minPictureBytes = 600
	maxPictureBytes = 2 << 20
)

var dataURLPattern = regexp.MustCompile(`^data:image/(png|jpg|jpeg);base64,`)

type ProfilePictureInput struct {
	Image string `json:"image"`
}

// SetProfilePicture stores the caller's avatar and points the profile at it.
func (a *App) SetProfilePicture(ctx context.Context, user domain.User, in ProfilePictureInput) (domain.User, error) {
	image := strings.TrimSpace(in.Image)
	match := dataURLPattern.FindStringSubmatch(image)
	if match == nil {
		return domain.User{}, ErrInvalidImage
	}
	// base64 expands 3 bytes to 4; reject oversized payloads before decoding.
	encoded := image[len(match[0]):]
	if len(encoded) > maxPictureBytes/3*4+4 {
		return domain.User{}, ErrImageSize
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.User{}, ErrInvalidImage
	}
	if len(raw) < minPictureBytes || len(raw) > maxPictureBytes {
		return domain.User{}, ErrImageSize
	}
	contentType := "image/" + match[1]
	if match[1] == "jpg" {
		contentType = "image/jpeg"
	}
	key := "pictures/" + user.Username + "/" + domain.PictureTypeProfile
	if err := a.objects.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), contentType); err != nil {
		return domain.User{}, apperr.Internal("Error saving picture", err)
	}
	now := a.clock()
	picture, err := a.store.UpsertPicture(ctx, domain.Picture{
		ID:          util.NewID(),
		OwnerKey:    user.Username,
		Type:        domain.PictureTypeProfile,
		ContentType: contentType,
		ObjectKey:   key,
		SizeBytes:   int64(len(raw)),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.User{}, apperr.Internal("Error saving picture", err)
	}
	pictureURL := a.publicURL + "/api/pictures/" + picture.ID
	updated, err := a.store.UpdateUser(ctx, user.ID, store.UserUpdate{ProfilePicture: &pictureURL, UpdatedAt: now})
	if err != nil {
		return domain.User{}, notFoundOr(err, ErrUserNotFound, "Error saving picture")
	}
	return updated, nil
}

// OpenPicture returns the stored picture bytes. Callers close Body.
func (a *App) OpenPicture(ctx context.Context, id string) (storage.Object, error) {
	if !util.IsID(id) {
		return storage.Object{}, invalidID("picture id")
	}
	picture, ok, err := a.store.GetPicture(ctx, strings.ToLower(id))
	if err != nil {
		return storage.Object{}, apperr.Internal("Error fetching picture", err)
	}
	if !ok {
		return storage.Object{}, ErrPictureNotFound
	}
	obj, err := a.objects.Get(ctx, picture.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Object{}, ErrPictureNotFound
		}
		return storage.Object{}, apperr.Internal("Error fetching picture", err)
	}
	if obj.ContentType == "" {
		obj.ContentType = picture.ContentType
	}
	return obj, nil
}
