package intake

import "rapidresponse/internal/models"

// escalationThreshold is the classifier confidence above which extra services are added.
const escalationThreshold = 0.8

var baseServices = map[string]models.RequiredServices{
	models.TypeFire:            {Fire: true},
	models.TypeMedical:         {Medical: true},
	models.TypeCrime:           {Police: true},
	models.TypeNaturalDisaster: {Rescue: true, Fire: true, Medical: true},
	models.TypeTraffic:         {Police: true, Medical: true},
}

var escalatedServices = map[string]models.RequiredServices{
	models.TypeFire:    {Rescue: true, Medical: true},
	models.TypeMedical: {Rescue: true},
	models.TypeCrime:   {Medical: true},
}

// ResolveRequiredServices returns the responder services an emergency of the given type
// needs. Unknown types need none.
func ResolveRequiredServices(emergencyType string, confidence float64) models.RequiredServices {
	t := models.NormalizeType(emergencyType)
	services := baseServices[t]
	if confidence > escalationThreshold {
		services = services.Union(escalatedServices[t])
	}
	return services
}
