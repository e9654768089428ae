package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/taskgrid/taskgrid/tasktype"
)

func (a *API) registerType(ctx forge.Context, req *RegisterTypeRequest) (*tasktype.TaskType, error) {
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}
	if req.Version == "" {
		return nil, forge.BadRequest("version is required")
	}
	if len(req.ParamSchema) == 0 {
		return nil, forge.BadRequest("param_schema is required")
	}

	tt, err := a.eng.RegisterType(ctx.Context(), req.Name, req.Version, req.ParamSchema)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return tt, ctx.JSON(http.StatusCreated, tt)
}

func (a *API) listTypes(ctx forge.Context, req *ListTypesRequest) ([]*tasktype.TaskType, error) {
	types, err := a.eng.ListTypes(ctx.Context(), req.Active)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return types, ctx.JSON(http.StatusOK, types)
}

func (a *API) getType(ctx forge.Context, _ *GetTypeRequest) (*tasktype.TaskType, error) {
	tt, err := a.eng.GetType(ctx.Context(), ctx.Param("name"))
	if err != nil {
		return nil, mapStoreError(err)
	}

	return tt, ctx.JSON(http.StatusOK, tt)
}

func (a *API) deactivateType(ctx forge.Context, _ *DeactivateTypeRequest) (*struct{}, error) {
	if err := a.eng.DeactivateType(ctx.Context(), ctx.Param("name")); err != nil {
		return nil, mapStoreError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}
