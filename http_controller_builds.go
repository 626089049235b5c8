package buildtracker

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterBuildRoutes wires the build pages. requireIdentity guards the
// pages that only make sense for a signed in user, mutations are always
// authorized again by the commands.
func RegisterBuildRoutes[T any](app router.Router[T], requireIdentity router.MiddlewareFunc, opts ...BuildControllerOption) *BuildController {
	c := NewBuildController(opts...)

	app.Get("/", c.Home).SetName("home.get")
	app.Get("/builds", c.BuildList).SetName("builds.get")
	app.Get("/dashboard", c.Dashboard, requireIdentity).SetName("dashboard.get")

	app.Get("/build/new", c.BuildNew, requireIdentity).SetName("build-new.get")
	app.Post("/build/new", c.BuildCreate, requireIdentity).SetName("build-new.post")
	app.Get("/build/:build", c.BuildShow).SetName("build.get")
	app.Get("/build/:build/edit", c.BuildEdit, requireIdentity).SetName("build-edit.get")
	app.Post("/build/:build/edit", c.BuildSave, requireIdentity).SetName("build-edit.post")

	app.Get("/update/new", c.UpdateNew, requireIdentity).SetName("update-new.get")
	app.Post("/update/new", c.UpdateCreate, requireIdentity).SetName("update-new.post")
	app.Get("/update/:update", c.UpdateShow).SetName("update.get")
	app.Get("/build/:build/update/:update/edit", c.UpdateEdit, requireIdentity).SetName("update-edit.get")
	app.Post("/build/:build/update/:update/edit", c.UpdateSave, requireIdentity).SetName("update-edit.post")
	app.Post("/update/:update/react", c.UpdateReact, requireIdentity).SetName("update-react.post")

	app.Post("/build/:build/update/:update/steps", c.StepCreate, requireIdentity).SetName("step-new.post")
	app.Get("/build/:build/update/:update/steps/:step/edit", c.StepEdit, requireIdentity).SetName("step-edit.get")
	app.Post("/build/:build/update/:update/steps/:step/edit", c.StepSave, requireIdentity).SetName("step-edit.post")

	app.Post("/update/:update/comments", c.CommentCreate, requireIdentity).SetName("comment-new.post")

	app.Get("/builder/:builder", c.BuilderShow).SetName("builder.get")
	app.Get("/profile", c.ProfileEdit, requireIdentity).SetName("profile.get")
	app.Post("/profile", c.ProfileSave, requireIdentity).SetName("profile.post")

	app.Get("/api/me", c.APIMe).SetName("api-me.get")

	return c
}

type BuildControllerViews struct {
	Home       string
	Builds     string
	Dashboard  string
	BuildForm  string
	Build      string
	Update     string
	UpdateForm string
	StepForm   string
	Builder    string
	Profile    string
	NotFound   string
}

type BuildController struct {
	Logger  Logger
	Repo    RepositoryManager
	Guard   *OwnershipGuard
	Session *RouteSession
	Views   *BuildControllerViews

	// HomeLimit caps the public builds shown on the home page
	HomeLimit int

	createBuild   *CreateBuildHandler
	updateBuild   *UpdateBuildHandler
	createUpdate  *CreateUpdateHandler
	editUpdate    *EditUpdateHandler
	reactToUpdate *ReactToUpdateHandler
	addStep       *AddStepHandler
	editStep      *EditStepHandler
	addComment    *AddCommentHandler
	updateProfile *UpdateProfileHandler
}

type BuildControllerOption func(*BuildController) *BuildController

func WithBuildRepo(repo RepositoryManager) BuildControllerOption {
	return func(c *BuildController) *BuildController {
		c.Repo = repo
		return c
	}
}

func WithBuildGuard(guard *OwnershipGuard) BuildControllerOption {
	return func(c *BuildController) *BuildController {
		c.Guard = guard
		return c
	}
}

func WithBuildSession(s *RouteSession) BuildControllerOption {
	return func(c *BuildController) *BuildController {
		c.Session = s
		return c
	}
}

func WithBuildLogger(l Logger) BuildControllerOption {
	return func(c *BuildController) *BuildController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func NewBuildController(opts ...BuildControllerOption) *BuildController {
	c := &BuildController{
		Logger:    defLogger{},
		HomeLimit: 12,
		Views: &BuildControllerViews{
			Home:       "home",
			Builds:     "builds",
			Dashboard:  "dashboard",
			BuildForm:  "build_form",
			Build:      "build",
			Update:     "update",
			UpdateForm: "update_form",
			StepForm:   "step_form",
			Builder:    "builder",
			Profile:    "profile",
			NotFound:   "errors/404",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in build controller...")
	}

	if c.Guard == nil {
		panic("Missing OwnershipGuard in build controller...")
	}

	if c.Session == nil {
		panic("Missing RouteSession in build controller...")
	}

	c.createBuild = NewCreateBuildHandler(c.Repo, c.Guard)
	c.updateBuild = NewUpdateBuildHandler(c.Repo, c.Guard)
	c.createUpdate = NewCreateUpdateHandler(c.Repo, c.Guard)
	c.editUpdate = NewEditUpdateHandler(c.Repo, c.Guard)
	c.reactToUpdate = NewReactToUpdateHandler(c.Repo, c.Guard)
	c.addStep = NewAddStepHandler(c.Repo, c.Guard)
	c.editStep = NewEditStepHandler(c.Repo, c.Guard)
	c.addComment = NewAddCommentHandler(c.Repo, c.Guard)
	c.updateProfile = NewUpdateProfileHandler(c.Repo, c.Guard)

	return c
}

func (bc *BuildController) Home(ctx router.Context) error {
	builds, err := bc.Repo.Builds().ListPublic(ctx.Context(), bc.HomeLimit)
	if err != nil {
		return bc.Session.ErrorHandler(ctx, err)
	}
	return ctx.Render(bc.Views.Home, MergeTemplateData(ctx, router.ViewContext{
		"builds": builds,
	}))
}

func (bc *BuildController) BuildList(ctx router.Context) error {
	builds, err := bc.Repo.Builds().ListPublic(ctx.Context(), 100)
	if err != nil {
		return bc.Session.ErrorHandler(ctx, err)
	}
	return ctx.Render(bc.Views.Builds, MergeTemplateData(ctx, router.ViewContext{
		"builds": builds,
	}))
}

func (bc *BuildController) Dashboard(ctx router.Context) error {
	identity := GetRouterIdentity(ctx)
	builds, err := bc.Repo.Builds().ListByOwner(ctx.Context(), identity.UserID(), true)
	if err != nil {
		return bc.Session.ErrorHandler(ctx, err)
	}
	return ctx.Render(bc.Views.Dashboard, MergeTemplateData(ctx, router.ViewContext{
		"builds": builds,
	}))
}

// BuildPayload is the build form. Type specific fields end up in Details.
type BuildPayload struct {
	Name             string `form:"name" json:"name"`
	Description      string `form:"description" json:"description"`
	BuildType        string `form:"build_type" json:"build_type"`
	Status           string `form:"status" json:"status"`
	Visibility       string `form:"visibility" json:"visibility"`
	Location         string `form:"location" json:"location"`
	Make             string `form:"make" json:"make"`
	Model            string `form:"model" json:"model"`
	Year             string `form:"year" json:"year"`
	ConstructionType string `form:"construction_type" json:"construction_type"`
	CraftType        string `form:"craft_type" json:"craft_type"`
}

// Fields maps the payload to the command fields
func (p BuildPayload) Fields() BuildFields {
	details := map[string]string{}
	set := func(key, val string) {
		if val = strings.TrimSpace(val); val != "" {
			details[key] = val
		}
	}

	switch p.BuildType {
	case BuildTypeVehicle:
		set("make", p.Make)
		set("model", p.Model)
		set("year", p.Year)
	case BuildTypeConstruction:
		set("construction_type", p.ConstructionType)
	case BuildTypeCraft:
		set("craft_type", p.CraftType)
	}

	if len(details) == 0 {
		details = nil
	}

	return BuildFields{
		Name:        p.Name,
		Description: p.Description,
		BuildType:   p.BuildType,
		Status:      p.Status,
		Visibility:  p.Visibility,
		Location:    p.Location,
		Details:     details,
	}
}

func payloadFromBuild(b *Build) BuildPayload {
	return BuildPayload{
		Name:             b.Name,
		Description:      b.Description,
		BuildType:        b.BuildType,
		Status:           b.Status,
		Visibility:       b.Visibility,
		Location:         b.Location,
		Make:             b.Details["make"],
		Model:            b.Details["model"],
		Year:             b.Details["year"],
		ConstructionType: b.Details["construction_type"],
		CraftType:        b.Details["craft_type"],
	}
}

func (bc *BuildController) BuildNew(ctx router.Context) error {
	return ctx.Render(bc.Views.BuildForm, MergeTemplateData(ctx, router.ViewContext{
		"record": BuildPayload{
			BuildType:  BuildTypeVehicle,
			Status:     BuildPlanning,
			Visibility: VisibilityPublic,
		},
		"is_new": true,
	}))
}

func (bc *BuildController) BuildCreate(ctx router.Context) error {
	payload := new(BuildPayload)
	if err := ctx.Bind(payload); err != nil {
		return bc.Session.ErrorHandler(ctx, badInput(err))
	}

	var created *Build
	err := bc.createBuild.Execute(ctx.Context(), CreateBuildMessage{
		BuildFields: payload.Fields(),
		OnResponse: func(b *Build) {
			created = b
		},
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, "/dashboard", bc.Views.BuildForm, router.ViewContext{
			"record": payload,
			"is_new": true,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Build created",
	}).Redirect(fmt.Sprintf("/builder/%s?tab=builds", url.PathEscape(created.UserID)), fiber.StatusSeeOther)
}

func (bc *BuildController) BuildShow(ctx router.Context) error {
	build, err := bc.Repo.Builds().GetBuild(ctx.Context(), ctx.Param("build"))
	if err != nil {
		return bc.renderError(ctx, err)
	}

	identity := GetRouterIdentity(ctx)
	if !CanView(identity, build) {
		return bc.renderError(ctx, notFound("build", ctx.Param("build")))
	}

	updates, err := bc.Repo.Updates().ListByBuild(ctx.Context(), build.ID)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	return ctx.Render(bc.Views.Build, MergeTemplateData(ctx, router.ViewContext{
		"build":    build,
		"updates":  updates,
		"is_owner": IsOwner(identity, build.OwnerID()),
	}))
}

func (bc *BuildController) BuildEdit(ctx router.Context) error {
	build, err := bc.Repo.Builds().GetBuild(ctx.Context(), ctx.Param("build"))
	if err != nil {
		return bc.renderError(ctx, err)
	}

	if !IsOwner(GetRouterIdentity(ctx), build.OwnerID()) {
		return bc.rejectNotOwner(ctx, buildPath(build.ID.String()))
	}

	return ctx.Render(bc.Views.BuildForm, MergeTemplateData(ctx, router.ViewContext{
		"build":  build,
		"record": payloadFromBuild(build),
		"is_new": false,
	}))
}

func (bc *BuildController) BuildSave(ctx router.Context) error {
	buildID := ctx.Param("build")
	payload := new(BuildPayload)
	if err := ctx.Bind(payload); err != nil {
		return bc.Session.ErrorHandler(ctx, badInput(err))
	}

	err := bc.updateBuild.Execute(ctx.Context(), UpdateBuildMessage{
		BuildID:     buildID,
		BuildFields: payload.Fields(),
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, buildPath(buildID), bc.Views.BuildForm, router.ViewContext{
			"record": payload,
			"is_new": false,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Build saved",
	}).Redirect(buildPath(buildID), fiber.StatusSeeOther)
}

// UpdatePayload is the update form
type UpdatePayload struct {
	BuildID     string `form:"build_id" json:"build_id"`
	Title       string `form:"title" json:"title"`
	Description string `form:"description" json:"description"`
	Status      string `form:"status" json:"status"`
}

func (p UpdatePayload) Fields() UpdateFields {
	return UpdateFields{Title: p.Title, Description: p.Description, Status: p.Status}
}

func (bc *BuildController) UpdateNew(ctx router.Context) error {
	buildID := ctx.Query("buildId", "")
	if buildID == "" {
		return ctx.Redirect("/builds", fiber.StatusFound)
	}

	build, err := bc.Repo.Builds().GetBuild(ctx.Context(), buildID)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	if !IsOwner(GetRouterIdentity(ctx), build.OwnerID()) {
		return bc.rejectNotOwner(ctx, buildPath(buildID))
	}

	return ctx.Render(bc.Views.UpdateForm, MergeTemplateData(ctx, router.ViewContext{
		"build":  build,
		"record": UpdatePayload{BuildID: buildID, Status: UpdatePlanned},
		"is_new": true,
	}))
}

func (bc *BuildController) UpdateCreate(ctx router.Context) error {
	payload := new(UpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return bc.Session.ErrorHandler(ctx, badInput(err))
	}

	if payload.BuildID == "" {
		payload.BuildID = ctx.Query("buildId", "")
	}

	var created *BuildUpdate
	err := bc.createUpdate.Execute(ctx.Context(), CreateUpdateMessage{
		BuildID:      payload.BuildID,
		UpdateFields: payload.Fields(),
		OnResponse: func(u *BuildUpdate) {
			created = u
		},
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, buildPath(payload.BuildID), bc.Views.UpdateForm, router.ViewContext{
			"record": payload,
			"is_new": true,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Update posted",
	}).Redirect(updatePath(created.ID.String()), fiber.StatusSeeOther)
}

// update page tabs
const (
	tabSteps    = "steps"
	tabComments = "comments"
)

func (bc *BuildController) UpdateShow(ctx router.Context) error {
	update, err := bc.Repo.Updates().GetUpdate(ctx.Context(), ctx.Param("update"))
	if err != nil {
		return bc.renderError(ctx, err)
	}

	identity := GetRouterIdentity(ctx)
	if !CanView(identity, update.Build) {
		return bc.renderError(ctx, notFound("update", ctx.Param("update")))
	}

	steps, err := bc.Repo.Steps().ListByUpdate(ctx.Context(), update.ID)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	comments, err := bc.Repo.Comments().ListByUpdate(ctx.Context(), update.ID)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	tab := ctx.Query("tab", tabSteps)
	if tab != tabComments {
		tab = tabSteps
	}

	return ctx.Render(bc.Views.Update, MergeTemplateData(ctx, router.ViewContext{
		"update":   update,
		"build":    update.Build,
		"steps":    steps,
		"comments": comments,
		"tab":      tab,
		"is_owner": IsOwner(identity, update.OwnerID()),
	}))
}

func (bc *BuildController) UpdateEdit(ctx router.Context) error {
	update, err := bc.loadUpdateForBuild(ctx)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	if !IsOwner(GetRouterIdentity(ctx), update.OwnerID()) {
		return bc.rejectNotOwner(ctx, updatePath(update.ID.String()))
	}

	return ctx.Render(bc.Views.UpdateForm, MergeTemplateData(ctx, router.ViewContext{
		"build":  update.Build,
		"update": update,
		"record": UpdatePayload{
			BuildID:     update.BuildID.String(),
			Title:       update.Title,
			Description: update.Description,
			Status:      update.Status,
		},
		"is_new": false,
	}))
}

func (bc *BuildController) UpdateSave(ctx router.Context) error {
	buildID, updateID := ctx.Param("build"), ctx.Param("update")

	payload := new(UpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return bc.Session.ErrorHandler(ctx, badInput(err))
	}
	payload.BuildID = buildID

	err := bc.editUpdate.Execute(ctx.Context(), EditUpdateMessage{
		BuildID:      buildID,
		UpdateID:     updateID,
		UpdateFields: payload.Fields(),
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, updatePath(updateID), bc.Views.UpdateForm, router.ViewContext{
			"record": payload,
			"is_new": false,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Update saved",
	}).Redirect(updatePath(updateID), fiber.StatusSeeOther)
}

func (bc *BuildController) UpdateReact(ctx router.Context) error {
	updateID := ctx.Param("update")

	err := bc.reactToUpdate.Execute(ctx.Context(), ReactToUpdateMessage{
		UpdateID: updateID,
		Reaction: ctx.FormValue("reaction"),
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, updatePath(updateID), "", nil)
	}

	return ctx.Redirect(updatePath(updateID), fiber.StatusSeeOther)
}

// StepPayload is the step form
type StepPayload struct {
	Title         string `form:"title" json:"title"`
	Description   string `form:"description" json:"description"`
	OrderPosition int    `form:"order_position" json:"order_position"`
}

func (bc *BuildController) StepCreate(ctx router.Context) error {
	buildID, updateID := ctx.Param("build"), ctx.Param("update")

	payload := new(StepPayload)
	if err := ctx.Bind(payload); err != nil {
		return bc.Session.ErrorHandler(ctx, badInput(err))
	}

	err := bc.addStep.Execute(ctx.Context(), AddStepMessage{
		BuildID:    buildID,
		UpdateID:   updateID,
		StepFields: StepFields{Title: payload.Title, Description: payload.Description},
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, updatePath(updateID), "", nil)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Step added",
	}).Redirect(updatePath(updateID)+"?tab="+tabSteps, fiber.StatusSeeOther)
}

func (bc *BuildController) StepEdit(ctx router.Context) error {
	update, err := bc.loadUpdateForBuild(ctx)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	if !IsOwner(GetRouterIdentity(ctx), update.OwnerID()) {
		return bc.rejectNotOwner(ctx, updatePath(update.ID.String()))
	}

	steps, err := bc.Repo.Steps().ListByUpdate(ctx.Context(), update.ID)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	stepID := ctx.Param("step")
	for _, step := range steps {
		if step.ID.String() == stepID {
			return ctx.Render(bc.Views.StepForm, MergeTemplateData(ctx, router.ViewContext{
				"build":  update.Build,
				"update": update,
				"step":   step,
				"record": StepPayload{
					Title:         step.Title,
					Description:   step.Description,
					OrderPosition: step.OrderPosition,
				},
			}))
		}
	}

	return bc.renderError(ctx, notFound("step", stepID))
}

func (bc *BuildController) StepSave(ctx router.Context) error {
	buildID, updateID, stepID := ctx.Param("build"), ctx.Param("update"), ctx.Param("step")

	payload := new(StepPayload)
	if err := ctx.Bind(payload); err != nil {
		return bc.Session.ErrorHandler(ctx, badInput(err))
	}

	err := bc.editStep.Execute(ctx.Context(), EditStepMessage{
		BuildID:       buildID,
		UpdateID:      updateID,
		StepID:        stepID,
		StepFields:    StepFields{Title: payload.Title, Description: payload.Description},
		OrderPosition: payload.OrderPosition,
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, updatePath(updateID), bc.Views.StepForm, router.ViewContext{
			"record": payload,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Step saved",
	}).Redirect(updatePath(updateID)+"?tab="+tabSteps, fiber.StatusSeeOther)
}

func (bc *BuildController) CommentCreate(ctx router.Context) error {
	updateID := ctx.Param("update")

	err := bc.addComment.Execute(ctx.Context(), AddCommentMessage{
		UpdateID: updateID,
		Content:  ctx.FormValue("content"),
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, updatePath(updateID), "", nil)
	}

	return ctx.Redirect(updatePath(updateID)+"?tab="+tabComments, fiber.StatusSeeOther)
}

// builder page tabs
var builderTabs = []string{"about", "builds", "contact"}

func (bc *BuildController) BuilderShow(ctx router.Context) error {
	builderID := ctx.Param("builder")

	profile, err := bc.Repo.Profiles().FindProfile(ctx.Context(), builderID)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	identity := GetRouterIdentity(ctx)
	isOwner := IsOwner(identity, builderID)

	builds, err := bc.Repo.Builds().ListByOwner(ctx.Context(), builderID, isOwner)
	if err != nil {
		return bc.renderError(ctx, err)
	}

	tab := ctx.Query("tab", builderTabs[0])
	valid := false
	for _, t := range builderTabs {
		if t == tab {
			valid = true
			break
		}
	}
	if !valid {
		tab = builderTabs[0]
	}

	return ctx.Render(bc.Views.Builder, MergeTemplateData(ctx, router.ViewContext{
		"builder":  profile,
		"stats":    NewBuilderStats(profile, len(builds), time.Now()),
		"builds":   builds,
		"tab":      tab,
		"tabs":     builderTabs,
		"is_owner": isOwner,
	}))
}

// ProfilePayload is the profile form. Skills is a comma separated list.
type ProfilePayload struct {
	DisplayName string `form:"display_name" json:"display_name"`
	FullName    string `form:"full_name" json:"full_name"`
	AvatarURL   string `form:"avatar_url" json:"avatar_url"`
	Bio         string `form:"bio" json:"bio"`
	Location    string `form:"location" json:"location"`
	Phone       string `form:"phone_number" json:"phone_number"`
	Skills      string `form:"skills" json:"skills"`
}

func (bc *BuildController) ProfileEdit(ctx router.Context) error {
	identity := GetRouterIdentity(ctx)

	record := ProfilePayload{}
	profile, err := bc.Repo.Profiles().FindProfile(ctx.Context(), identity.UserID())
	switch {
	case err == nil:
		record = ProfilePayload{
			DisplayName: profile.DisplayName,
			FullName:    profile.FullName,
			AvatarURL:   profile.AvatarURL,
			Bio:         profile.Bio,
			Location:    profile.Location,
			Phone:       profile.Phone,
			Skills:      strings.Join(profile.Skills, ", "),
		}
	case IsRecordNotFound(err):
	default:
		return bc.renderError(ctx, err)
	}

	return ctx.Render(bc.Views.Profile, MergeTemplateData(ctx, router.ViewContext{
		"record": record,
	}))
}

func (bc *BuildController) ProfileSave(ctx router.Context) error {
	payload := new(ProfilePayload)
	if err := ctx.Bind(payload); err != nil {
		return bc.Session.ErrorHandler(ctx, badInput(err))
	}

	var saved *Profile
	err := bc.updateProfile.Execute(ctx.Context(), UpdateProfileMessage{
		DisplayName: payload.DisplayName,
		FullName:    payload.FullName,
		AvatarURL:   payload.AvatarURL,
		Bio:         payload.Bio,
		Location:    payload.Location,
		Phone:       payload.Phone,
		Skills:      []string{payload.Skills},
		OnResponse: func(p *Profile) {
			saved = p
		},
	})
	if err != nil {
		return bc.handleCommandError(ctx, err, "/profile", bc.Views.Profile, router.ViewContext{
			"record": payload,
		})
	}

	if bc.Session.notifier != nil {
		identity := GetRouterIdentity(ctx)
		event := NewSessionEvent(SessionUserUpdated, &Session{
			UserID: saved.ID,
			Email:  identity.EmailAddress(),
		})
		if err := bc.Session.notifier.Publish(ctx.Context(), event); err != nil {
			bc.Logger.Warn("publish profile update failed", "error", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Profile saved",
	}).Redirect(fmt.Sprintf("/builder/%s", url.PathEscape(saved.ID)), fiber.StatusSeeOther)
}

// APIMe returns the identity resolved for the request
func (bc *BuildController) APIMe(ctx router.Context) error {
	identity := GetRouterIdentity(ctx)
	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"id":               identity.ID,
		"email":            identity.Email,
		"display_name":     identity.DisplayName,
		"is_authenticated": identity.IsAuthenticated,
	})
}

func (bc *BuildController) loadUpdateForBuild(ctx router.Context) (*BuildUpdate, error) {
	buildID, updateID := ctx.Param("build"), ctx.Param("update")
	update, err := bc.Repo.Updates().GetUpdate(ctx.Context(), updateID)
	if err != nil {
		return nil, err
	}
	if update.BuildID.String() != buildID {
		return nil, notFound("update", updateID)
	}
	return update, nil
}

// handleCommandError maps a command failure to a response. Validation
// errors re-render view with the failed fields, when view is empty they
// flash and go back to readPath.
func (bc *BuildController) handleCommandError(ctx router.Context, err error, readPath, view string, data router.ViewContext) error {
	switch {
	case IsValidation(err):
		fields := ValidationFields(err)
		if view == "" {
			return flash.WithError(ctx, router.ViewContext{
				"error_message":  err.Error(),
				"system_message": "Please check the submitted values",
				"validation":     fields,
			}).Redirect(readPath, fiber.StatusSeeOther)
		}
		if data == nil {
			data = router.ViewContext{}
		}
		data["validation"] = fields
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Status(fiber.StatusUnprocessableEntity).Render(view, MergeTemplateData(ctx, data))
	case IsNotAuthenticated(err):
		return bc.Session.AuthErrorHandler(ctx, err)
	case IsNotOwner(err):
		return bc.rejectNotOwner(ctx, readPath)
	case IsRecordNotFound(err):
		return bc.renderError(ctx, err)
	default:
		bc.Logger.Error("command failed", "path", ctx.OriginalURL(), "error", err)
		return bc.Session.ErrorHandler(ctx, err)
	}
}

func (bc *BuildController) rejectNotOwner(ctx router.Context, readPath string) error {
	bc.Logger.Info("ownership rejected", "path", ctx.OriginalURL())
	return flash.WithError(ctx, router.ViewContext{
		"error_message":  ErrNotOwner.Message,
		"system_message": "Only the owner can change this",
	}).Redirect(readPath, fiber.StatusSeeOther)
}

func (bc *BuildController) renderError(ctx router.Context, err error) error {
	if IsRecordNotFound(err) {
		return ctx.Status(fiber.StatusNotFound).Render(bc.Views.NotFound, MergeTemplateData(ctx, router.ViewContext{
			"error": err,
		}))
	}
	return bc.Session.ErrorHandler(ctx, err)
}

func badInput(err error) error {
	return errors.Wrap(err, errors.CategoryBadInput, "could not parse form").
		WithCode(errors.CodeBadRequest)
}

func buildPath(id string) string {
	return "/build/" + url.PathEscape(id)
}

func updatePath(id string) string {
	return "/update/" + url.PathEscape(id)
}
