package main

import (
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/userplane/userplane/pkg/config"
	"github.com/userplane/userplane/pkg/idp"
	"github.com/userplane/userplane/pkg/idp/idpmemory"
	"github.com/userplane/userplane/pkg/trigger"
)

type server struct {
	cfg              config.Config
	writer           *idpmemory.Writer
	preSignup        *trigger.PreSignup
	postConfirmation *trigger.PostConfirmation
	preTokenGen      *trigger.PreTokenGen
}

func (s *server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "userplane-dev",
	})
}

func (s *server) handlePreSignup(c *fiber.Ctx) error {
	var event events.CognitoEventUserPoolsPreSignup
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid trigger event")
	}
	out, err := s.preSignup.Handle(c.Context(), event)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *server) handlePostConfirmation(c *fiber.Ctx) error {
	var event events.CognitoEventUserPoolsPostConfirmation
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid trigger event")
	}
	out, err := s.postConfirmation.Handle(c.Context(), event)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *server) handlePreTokenGen(c *fiber.Ctx) error {
	var event events.CognitoEventUserPoolsPreTokenGen
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid trigger event")
	}
	out, err := s.preTokenGen.Handle(c.Context(), event)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// tokenRequest asks for a development token for a previously confirmed user.
type tokenRequest struct {
	Username      string `json:"username"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	TriggerSource string `json:"trigger_source"`
}

// handleToken runs the issuance path end to end: the stored identity
// attributes go through the pre-token-generation handler and the resulting
// claims are signed into an HS256 development JWT.
func (s *server) handleToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid token request")
	}
	if req.Username == "" || req.Sub == "" {
		return fiber.NewError(fiber.StatusBadRequest, "username and sub are required")
	}

	attrs := s.writer.Attributes(req.Username)
	attrs[idp.AttrSub] = req.Sub
	if req.Email != "" {
		attrs[idp.AttrEmail] = req.Email
	}

	event := events.CognitoEventUserPoolsPreTokenGen{}
	event.UserName = req.Username
	event.UserPoolID = s.cfg.Dev.UserPoolID
	event.TriggerSource = req.TriggerSource
	event.Request.UserAttributes = attrs

	out, err := s.preTokenGen.Handle(c.Context(), event)
	if err != nil {
		return err
	}
	enriched := out.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride

	now := time.Now()
	tokenClaims := jwt.MapClaims{
		"sub": req.Sub,
		"iss": "userplane-dev",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for name, value := range enriched {
		tokenClaims[name] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims)
	signed, err := token.SignedString([]byte(s.cfg.Dev.JWTSecret))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"claims":       enriched,
	})
}
