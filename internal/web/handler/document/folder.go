package document

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/apperr"
	folderctl "github.com/docvault/docvault/internal/db/controller/folder"
	"github.com/docvault/docvault/internal/web/handler"
)

type folderRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=255"`
	ParentID *uint64 `json:"parent_id"`
}

type moveRequest struct {
	// ParentID is the new parent; null moves the folder to the root.
	ParentID *uint64 `json:"parent_id"`
}

func (s *service) initFolders(app *fiber.App) {
	app.Get(FolderPath, s.listFolders)
	app.Post(FolderPath, s.createFolder)
	app.Get(FolderPath+"/:id/documents", s.folderDocuments)
	app.Patch(FolderPath+"/:id", s.renameFolder)
	app.Post(FolderPath+"/:id/move", s.moveFolder)
	app.Delete(FolderPath+"/:id", s.deleteFolder)
}

// listFolders returns the visible subfolders of ?parent_id, or the visible
// root folders when the parameter is absent.
func (s *service) listFolders(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	var parentID *uint64
	if raw := c.QueryInt("parent_id", 0); raw > 0 {
		id := uint64(raw)
		parentID = &id
	}

	folders, err := access.VisibleFolders(s.db, u.ID, u.IsAdmin(), parentID)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(folders)
}

func (s *service) createFolder(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	var req folderRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	f, err := folderctl.Create(s.db, req.Name, req.ParentID, u.ID)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(f)
}

// folderDocuments returns one page of the caller's visible documents stored
// directly in the folder.
func (s *service) folderDocuments(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	if _, err := folderctl.GetByID(s.db, id); err != nil {
		return handler.Fail(c, err)
	}

	page, err := access.InFolder(
		s.db, u.ID, u.IsAdmin(), &id,
		c.QueryInt("page", 1), c.QueryInt("per_page", 0),
	)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(page)
}

func (s *service) renameFolder(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	var req renameRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	f, err := folderctl.Rename(s.db, id, u.ID, u.IsAdmin(), req.Name)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(f)
}

func (s *service) moveFolder(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return handler.Fail(c, apperr.Wrap(apperr.KindConflict, err, "invalid request body"))
	}

	f, err := folderctl.Move(s.db, id, u.ID, u.IsAdmin(), req.ParentID)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(f)
}

func (s *service) deleteFolder(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	if err := folderctl.Delete(s.db, id, u.ID, u.IsAdmin()); err != nil {
		return handler.Fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
